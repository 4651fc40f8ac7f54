package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// Scheduler periodically removes old media files. Media is deliberately kept
// on disk after transcription so transcripts can be exported alongside their
// source; this sweep is the separate, age-based cleanup path.
type Scheduler struct {
	mediaDir string
	interval time.Duration
	maxAge   time.Duration
	stopChan chan struct{}
}

// NewScheduler creates a cleanup scheduler for mediaDir
func NewScheduler(mediaDir string, intervalMinutes, maxAgeHours int) *Scheduler {
	return &Scheduler{
		mediaDir: mediaDir,
		interval: time.Duration(intervalMinutes) * time.Minute,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start begins the cleanup scheduler
func (s *Scheduler) Start() {
	log.Println("Running initial media cleanup...")
	s.SweepNow()

	ticker := time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.SweepNow()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("Cleanup scheduler started (interval: %s, max age: %s)", s.interval, s.maxAge)
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	log.Println("Cleanup scheduler stopped")
}

// SweepNow removes media files older than maxAge and returns how many were
// deleted. Also called directly by the maintenance endpoint.
func (s *Scheduler) SweepNow() int {
	now := time.Now()

	var deletedCount int
	var deletedSize int64

	err := filepath.Walk(s.mediaDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if info.IsDir() {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age > s.maxAge {
			size := info.Size()
			if err := os.Remove(path); err != nil {
				log.Printf("Failed to delete old media file %s: %v", path, err)
			} else {
				deletedCount++
				deletedSize += size
				log.Printf("Deleted old media file: %s (age: %s)", filepath.Base(path), age.Round(time.Hour))
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("Error during cleanup: %v", err)
	}

	if deletedCount > 0 {
		log.Printf("Cleanup complete: %d files deleted, %.2fMB freed",
			deletedCount, float64(deletedSize)/(1024*1024))
	}
	return deletedCount
}

// EnsureDirExists creates a working directory if it doesn't exist
func EnsureDirExists(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return nil
}

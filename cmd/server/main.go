package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/creator-analyzer/internal/analysis"
	"github.com/codebuildervaibhav/creator-analyzer/internal/cleanup"
	"github.com/codebuildervaibhav/creator-analyzer/internal/config"
	"github.com/codebuildervaibhav/creator-analyzer/internal/fetch"
	"github.com/codebuildervaibhav/creator-analyzer/internal/handlers"
	"github.com/codebuildervaibhav/creator-analyzer/internal/pipeline"
	"github.com/codebuildervaibhav/creator-analyzer/internal/retry"
	"github.com/codebuildervaibhav/creator-analyzer/internal/scheduler"
	"github.com/codebuildervaibhav/creator-analyzer/internal/scrape"
	"github.com/codebuildervaibhav/creator-analyzer/internal/storage"
	"github.com/codebuildervaibhav/creator-analyzer/internal/store"
	"github.com/codebuildervaibhav/creator-analyzer/internal/transcription"
	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config/config.yaml")
	if os.IsNotExist(err) {
		log.Println("No config file found, using defaults")
		cfg = config.Default()
	} else if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ensure directories exist
	for _, dir := range []string{cfg.Storage.MediaDir, cfg.Storage.OutputDir, filepath.Dir(cfg.Storage.Database)} {
		if err := cleanup.EnsureDirExists(dir); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	// Custom logger setup
	logBuffer := &LogBuffer{
		lines: make([]string, 0, 1000),
	}
	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	log.SetOutput(multiWriter)

	log.Println("Initializing components...")

	// State store
	st, err := store.NewStore(cfg.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	// Retry policy shared by fetch and transcription
	policy := retry.Policy{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		BaseDelay:     cfg.RetryBaseDelay(),
		MaxDelay:      cfg.RetryMaxDelay(),
		BackoffFactor: cfg.Retry.BackoffFactor,
		JitterRatio:   cfg.Retry.JitterRatio,
	}

	// Pipeline collaborators
	navTimeout := time.Duration(cfg.Scraper.NavigationTimeoutMins) * time.Minute
	discoverer := scrape.NewDiscoverer(cfg.Scraper.UserDataDir, cfg.Scraper.MaxScrollCount,
		cfg.Scraper.Headless, navTimeout)
	fetcher := fetch.NewFetcher(cfg.Storage.MediaDir, cfg.Scraper.UserDataDir, navTimeout)
	transcriber := transcription.NewWhisperTranscriber(cfg.Whisper.Model, cfg.Whisper.Threads)

	var analyzer pipeline.Analyzer
	if cfg.Analysis.Enabled && cfg.Analysis.APIKey != "" {
		analyzer = analysis.NewDeepSeekAnalyzer(cfg.Analysis.APIKey, cfg.Analysis.BaseURL, cfg.Analysis.Model)
		log.Println("Style analysis enabled")
	} else {
		log.Println("Style analysis disabled - jobs will produce transcripts only")
	}

	resultWriter := storage.NewResultWriter(cfg.Storage.OutputDir)

	// Pipeline and scheduler
	itemProcessor := pipeline.NewItemProcessor(st, fetcher, transcriber, policy, cfg.Scheduler.VideoRetryLimit)
	jobPipeline := pipeline.New(st, discoverer, analyzer, itemProcessor, resultWriter)
	jobScheduler := scheduler.New(cfg.Scheduler.MaxConcurrentJobs, jobPipeline, st)

	// Resume jobs interrupted by a restart; already-completed videos are
	// skipped when the pipeline re-runs them.
	resumeInterrupted(st, jobScheduler)

	// Google Drive client (optional - may fail if credentials not set up)
	var driveClient *storage.DriveClient
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
		driveClient, err = storage.NewDriveClient(
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			driveClient = nil
		} else {
			log.Println("Google Drive export enabled")
		}
	} else {
		log.Println("Google Drive credentials not found - export disabled")
	}

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		cfg.Storage.MediaDir,
		cfg.Cleanup.IntervalMinutes,
		cfg.Cleanup.MaxAgeHours,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Limits.MaxBodySizeMB * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Initialize handlers
	jobHandler := handlers.NewJobHandler(st, jobScheduler, cfg.Limits.MaxVideosPerJob)
	resultHandler := handlers.NewResultHandler(st, driveClient)
	progressHandler := handlers.NewProgressHandler(st)

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Post("/jobs", jobHandler.Create)
	app.Get("/jobs", jobHandler.List)
	app.Get("/jobs/:id", jobHandler.Get)
	app.Delete("/jobs/:id", jobHandler.Cancel)
	app.Get("/jobs/:id/videos", jobHandler.Videos)
	app.Get("/jobs/:id/result", resultHandler.Get)
	app.Post("/jobs/:id/export", resultHandler.Export)
	app.Get("/queue", jobHandler.Queue)

	// WebSocket route
	app.Get("/ws/jobs/:id", websocket.New(progressHandler.Handle))

	// Externally triggered media cleanup
	app.Post("/maintenance/cleanup", func(c *fiber.Ctx) error {
		deleted := cleanupScheduler.SweepNow()
		return c.JSON(fiber.Map{"deleted": deleted})
	})

	// Get server logs
	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST   /jobs                - Submit a feed analysis job")
	log.Println("   GET    /jobs                - List jobs")
	log.Println("   GET    /jobs/:id            - Job status and progress")
	log.Println("   DELETE /jobs/:id            - Cancel a job")
	log.Println("   GET    /jobs/:id/videos     - Per-video records")
	log.Println("   GET    /jobs/:id/result     - Result artifact")
	log.Println("   POST   /jobs/:id/export     - Export result to Google Drive")
	log.Println("   GET    /queue               - Scheduler queue status")
	log.Println("   GET    /ws/jobs/:id         - WebSocket progress stream")
	log.Println("   GET    /health              - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// resumeInterrupted resubmits jobs that were pending or running when the
// previous process stopped. The scheduler's in-memory state is only a cache;
// the store is authoritative.
func resumeInterrupted(st *store.Store, sched *scheduler.Scheduler) {
	ids, err := st.JobsInStatus(types.JobPending, types.JobRunning)
	if err != nil {
		log.Printf("WARNING: failed to query interrupted jobs: %v", err)
		return
	}
	for _, id := range ids {
		if err := sched.Submit(id); err != nil {
			log.Printf("WARNING: failed to resume job %s: %v", id, err)
		} else {
			log.Printf("Resumed interrupted job %s", id)
		}
	}
}

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))

	// Keep last 1000 lines
	if len(lb.lines) > 1000 {
		lb.lines = lb.lines[len(lb.lines)-1000:]
	}

	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}

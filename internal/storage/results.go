package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// ResultWriter persists the immutable result artifact of a finished job
type ResultWriter struct {
	outputDir string
}

// NewResultWriter creates a result writer rooted at outputDir
func NewResultWriter(outputDir string) *ResultWriter {
	return &ResultWriter{outputDir: outputDir}
}

// ResultArtifact is the JSON document written once per completed job. It is
// never rewritten; re-running a job produces a new file.
type ResultArtifact struct {
	JobInfo struct {
		JobID       string    `json:"job_id"`
		TargetURL   string    `json:"target_url"`
		TargetName  string    `json:"target_name"`
		Language    string    `json:"language"`
		CreatedAt   time.Time `json:"created_at"`
		CompletedAt time.Time `json:"completed_at"`
		TotalVideos int       `json:"total_videos"`
	} `json:"job_info"`
	Report string         `json:"style_report,omitempty"`
	Videos []*types.Video `json:"videos"`
}

// Write saves the artifact under a dated directory and returns its path
func (w *ResultWriter) Write(job *types.Job, videos []*types.Video, report string) (string, error) {
	now := time.Now()
	dateDir := filepath.Join(w.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create result directory: %v", err)
	}

	var artifact ResultArtifact
	artifact.JobInfo.JobID = job.ID
	artifact.JobInfo.TargetURL = job.TargetURL
	artifact.JobInfo.TargetName = job.TargetName
	artifact.JobInfo.Language = job.Language
	artifact.JobInfo.CreatedAt = job.CreatedAt
	artifact.JobInfo.CompletedAt = now.UTC()
	artifact.JobInfo.TotalVideos = len(videos)
	artifact.Report = report
	artifact.Videos = videos

	encoded, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %v", err)
	}

	filename := fmt.Sprintf("%s_analysis_%s_%d.json",
		now.Format("20060102_150405"), sanitizeFilename(job.ID), now.Unix())
	path := filepath.Join(dateDir, filename)

	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return "", fmt.Errorf("failed to save result: %v", err)
	}

	return path, nil
}

// sanitizeFilename removes invalid characters from filename
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
	result := replacer.Replace(name)
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}

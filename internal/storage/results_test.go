package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

func TestWriteResultArtifact(t *testing.T) {
	dir := t.TempDir()
	w := NewResultWriter(dir)

	job := &types.Job{
		ID:         "job-1",
		TargetURL:  "https://example.com/@creator",
		TargetName: "creator",
		Language:   "en",
		CreatedAt:  time.Now().UTC(),
	}
	videos := []*types.Video{
		{VideoID: "v1", Title: "clip", Transcript: "hello", Status: types.VideoCompleted},
		{VideoID: "v2", Title: "clip 2", Status: types.VideoFailed},
	}

	path, err := w.Write(job, videos, "style report body")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Artifacts land under a year/month/day directory
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 4 {
		t.Errorf("artifact path %q not under a dated directory", rel)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var artifact ResultArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}
	if artifact.JobInfo.JobID != "job-1" || artifact.JobInfo.TotalVideos != 2 {
		t.Errorf("job info = %+v", artifact.JobInfo)
	}
	if artifact.Report != "style report body" {
		t.Errorf("report = %q", artifact.Report)
	}
	if len(artifact.Videos) != 2 || artifact.Videos[0].Transcript != "hello" {
		t.Errorf("videos not embedded: %+v", artifact.Videos)
	}
}

func TestWriteWithoutReportOmitsField(t *testing.T) {
	w := NewResultWriter(t.TempDir())
	job := &types.Job{ID: "job-1", TargetURL: "u", CreatedAt: time.Now().UTC()}

	path, err := w.Write(job, nil, "")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "style_report") {
		t.Error("empty report should be omitted from the artifact")
	}
}

func TestSanitizeFilename(t *testing.T) {
	got := sanitizeFilename(`a/b\c:d*e?f"g<h>i|j`)
	if strings.ContainsAny(got, `/\:*?"<>|`) {
		t.Errorf("sanitized name still has invalid characters: %q", got)
	}

	long := strings.Repeat("x", 200)
	if got := sanitizeFilename(long); len(got) != 100 {
		t.Errorf("long name trimmed to %d chars, want 100", len(got))
	}
}

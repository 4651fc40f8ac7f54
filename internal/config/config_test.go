package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultFillsEverything(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Scheduler.MaxConcurrentJobs != 3 {
		t.Errorf("max concurrent jobs = %d, want 3", cfg.Scheduler.MaxConcurrentJobs)
	}
	if cfg.Scheduler.VideoRetryLimit != 3 {
		t.Errorf("video retry limit = %d, want 3", cfg.Scheduler.VideoRetryLimit)
	}
	if cfg.Retry.MaxAttempts != 10 || cfg.Retry.BackoffFactor != 2.0 {
		t.Errorf("retry defaults = %d attempts, factor %.1f", cfg.Retry.MaxAttempts, cfg.Retry.BackoffFactor)
	}
	if cfg.RetryBaseDelay() != 2*time.Second || cfg.RetryMaxDelay() != 60*time.Second {
		t.Errorf("retry delays = %s / %s", cfg.RetryBaseDelay(), cfg.RetryMaxDelay())
	}
	if cfg.Whisper.Model != "small" {
		t.Errorf("whisper model = %q, want small", cfg.Whisper.Model)
	}
	if cfg.Analysis.BaseURL == "" || cfg.Analysis.Model == "" {
		t.Error("analysis endpoint defaults missing")
	}
}

func TestLoadOverridesAndKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
scheduler:
  max_concurrent_jobs: 5
retry:
  base_delay_seconds: 0.5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want override 9090", cfg.Server.Port)
	}
	if cfg.Scheduler.MaxConcurrentJobs != 5 {
		t.Errorf("max concurrent jobs = %d, want override 5", cfg.Scheduler.MaxConcurrentJobs)
	}
	if cfg.RetryBaseDelay() != 500*time.Millisecond {
		t.Errorf("base delay = %s, want 500ms", cfg.RetryBaseDelay())
	}
	// Fields the file omits still pick up defaults
	if cfg.Server.Host != "0.0.0.0" || cfg.Whisper.Model != "small" {
		t.Error("omitted fields did not default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Errorf("Load of missing file: err = %v, want os.IsNotExist", err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("server: [not: a map"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}

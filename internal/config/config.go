package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Scheduler struct {
		MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
		VideoRetryLimit   int `yaml:"video_retry_limit"`
	} `yaml:"scheduler"`

	Retry struct {
		MaxAttempts      int     `yaml:"max_attempts"`
		BaseDelaySeconds float64 `yaml:"base_delay_seconds"`
		MaxDelaySeconds  float64 `yaml:"max_delay_seconds"`
		BackoffFactor    float64 `yaml:"backoff_factor"`
		JitterRatio      float64 `yaml:"jitter_ratio"`
	} `yaml:"retry"`

	Scraper struct {
		UserDataDir           string `yaml:"user_data_dir"`
		MaxScrollCount        int    `yaml:"max_scroll_count"`
		Headless              bool   `yaml:"headless"`
		NavigationTimeoutMins int    `yaml:"navigation_timeout_minutes"`
	} `yaml:"scraper"`

	Whisper struct {
		Model   string `yaml:"model"`
		Threads int    `yaml:"threads"`
	} `yaml:"whisper"`

	Analysis struct {
		Enabled bool   `yaml:"enabled"`
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"analysis"`

	Storage struct {
		MediaDir  string `yaml:"media_dir"`
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Limits struct {
		MaxVideosPerJob int `yaml:"max_videos_per_job"`
		MaxBodySizeMB   int `yaml:"max_body_size_mb"`
	} `yaml:"limits"`
}

// Load reads the YAML config file and fills in defaults for anything omitted
func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	config.applyDefaults()
	return &config, nil
}

// Default returns a config with every default applied, used by tests and by
// first-run setups without a config file.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Scheduler.MaxConcurrentJobs <= 0 {
		c.Scheduler.MaxConcurrentJobs = 3
	}
	if c.Scheduler.VideoRetryLimit <= 0 {
		c.Scheduler.VideoRetryLimit = 3
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 10
	}
	if c.Retry.BaseDelaySeconds <= 0 {
		c.Retry.BaseDelaySeconds = 2
	}
	if c.Retry.MaxDelaySeconds <= 0 {
		c.Retry.MaxDelaySeconds = 60
	}
	if c.Retry.BackoffFactor <= 0 {
		c.Retry.BackoffFactor = 2.0
	}
	if c.Retry.JitterRatio < 0 || c.Retry.JitterRatio >= 1 {
		c.Retry.JitterRatio = 0.25
	}
	if c.Scraper.UserDataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.Scraper.UserDataDir = home + "/.creator-analyzer-browser"
		}
	}
	if c.Scraper.MaxScrollCount <= 0 {
		c.Scraper.MaxScrollCount = 15
	}
	if c.Scraper.NavigationTimeoutMins <= 0 {
		c.Scraper.NavigationTimeoutMins = 5
	}
	if c.Whisper.Model == "" {
		c.Whisper.Model = "small"
	}
	if c.Whisper.Threads <= 0 {
		c.Whisper.Threads = 4
	}
	if c.Analysis.BaseURL == "" {
		c.Analysis.BaseURL = "https://api.deepseek.com"
	}
	if c.Analysis.Model == "" {
		c.Analysis.Model = "deepseek-chat"
	}
	if c.Storage.MediaDir == "" {
		c.Storage.MediaDir = "temp/media"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "output"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "data/analyzer.db"
	}
	if c.Cleanup.IntervalMinutes <= 0 {
		c.Cleanup.IntervalMinutes = 60
	}
	if c.Cleanup.MaxAgeHours <= 0 {
		c.Cleanup.MaxAgeHours = 24
	}
	if c.GoogleDrive.FolderName == "" {
		c.GoogleDrive.FolderName = "CreatorAnalyzer"
	}
	if c.Limits.MaxVideosPerJob <= 0 {
		c.Limits.MaxVideosPerJob = 200
	}
	if c.Limits.MaxBodySizeMB <= 0 {
		c.Limits.MaxBodySizeMB = 10
	}
}

// RetryBaseDelay converts the configured base delay into a duration
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelaySeconds * float64(time.Second))
}

// RetryMaxDelay converts the configured max delay into a duration
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelaySeconds * float64(time.Second))
}

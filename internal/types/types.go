package types

import "time"

// Job status constants
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Job step constants
const (
	StepInitializing = "initializing"
	StepDiscovering  = "discovering"
	StepAcquiring    = "acquiring"
	StepTranscribing = "transcribing"
	StepFinalizing   = "finalizing"
)

// Video processing status constants
const (
	VideoPending    = "pending"
	VideoProcessing = "processing"
	VideoCompleted  = "completed"
	VideoFailed     = "failed"
)

// MaxRetryHistory bounds the per-video retry error log; oldest entries are
// evicted first.
const MaxRetryHistory = 20

// Job represents one end-to-end feed analysis request against a creator page
type Job struct {
	ID             string `json:"id"`
	TargetURL      string `json:"target_url"`
	TargetName     string `json:"target_name"`
	MaxVideos      int    `json:"max_videos"`
	EnableAnalysis bool   `json:"enable_analysis"`
	Language       string `json:"language"`

	Status   string `json:"status"`
	Step     string `json:"current_step"`
	Progress int    `json:"progress"` // 0-100

	Discovered int `json:"videos_discovered"`
	Processed  int `json:"videos_processed"`
	Succeeded  int `json:"videos_success"`
	Failed     int `json:"videos_failed"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ResultRef     string `json:"result_file,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	AnalysisError string `json:"analysis_error,omitempty"`

	// Estimated seconds until the job finishes; nil until at least one
	// video has been processed.
	EstimatedRemaining *int `json:"estimated_remaining,omitempty"`
}

// Video represents one discovered video belonging to a job
type Video struct {
	ID      int64  `json:"id"`
	JobID   string `json:"job_id"`
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	URL     string `json:"url"`

	Status     string  `json:"processing_status"`
	Transcript string  `json:"transcript,omitempty"`
	Confidence float64 `json:"transcript_confidence,omitempty"`
	Language   string  `json:"language_detected,omitempty"`

	MediaPath string `json:"media_path,omitempty"`
	MediaSize int64  `json:"media_size,omitempty"`

	RetryCount   int          `json:"retry_count"`
	RetryHistory []RetryEntry `json:"retry_history,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// RetryEntry is one recorded processing failure for a video
type RetryEntry struct {
	Attempt   int       `json:"attempt"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// VideoStub is what the discoverer finds on a creator page before any
// processing happens
type VideoStub struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
}

// Media describes a fetched media file on local disk
type Media struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Transcript is the output of one transcription call
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// AnalysisInput is one video's contribution to the style analysis prompt
type AnalysisInput struct {
	Title      string `json:"title"`
	Transcript string `json:"transcript"`
}

// Report is the result of the style analysis pass
type Report struct {
	Body   string `json:"body"`
	Status string `json:"status"`
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// ErrNotFound is returned when a job or video id is unknown.
var ErrNotFound = errors.New("not found")

// Store is the single source of truth for job and video state. Every mutation
// is one atomic UPDATE; the pipeline never holds a transaction open across an
// external call.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at dbPath
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// A job has exactly one worker, so per-record writes never race, but
	// SQLite still wants a single writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		target_url TEXT NOT NULL,
		target_name TEXT NOT NULL DEFAULT '',
		max_videos INTEGER NOT NULL DEFAULT 50,
		enable_analysis INTEGER NOT NULL DEFAULT 1,
		language TEXT NOT NULL DEFAULT 'en',
		status TEXT NOT NULL DEFAULT 'pending',
		current_step TEXT NOT NULL DEFAULT 'initializing',
		progress INTEGER NOT NULL DEFAULT 0,
		videos_discovered INTEGER NOT NULL DEFAULT 0,
		videos_processed INTEGER NOT NULL DEFAULT 0,
		videos_success INTEGER NOT NULL DEFAULT 0,
		videos_failed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		result_file TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		analysis_error TEXT NOT NULL DEFAULT '',
		estimated_remaining INTEGER
	);

	CREATE TABLE IF NOT EXISTS job_videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		video_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		processing_status TEXT NOT NULL DEFAULT 'pending',
		transcript TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		language TEXT NOT NULL DEFAULT '',
		media_path TEXT NOT NULL DEFAULT '',
		media_size INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		retry_history TEXT NOT NULL DEFAULT '[]',
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		processed_at DATETIME,
		UNIQUE(job_id, video_id)
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	CREATE INDEX IF NOT EXISTS idx_videos_job_id ON job_videos(job_id);
	CREATE INDEX IF NOT EXISTS idx_videos_video_id ON job_videos(video_id);
	`

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &Store{db: db}, nil
}

// CreateJob inserts a new job in pending status. Zero-value fields get the
// same defaults the API layer documents.
func (s *Store) CreateJob(job *types.Job) error {
	if job.MaxVideos <= 0 {
		job.MaxVideos = 50
	}
	if job.Language == "" {
		job.Language = "en"
	}
	if job.Status == "" {
		job.Status = types.JobPending
	}
	if job.Step == "" {
		job.Step = types.StepInitializing
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO jobs (id, target_url, target_name, max_videos, enable_analysis, language,
		status, current_step, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, job.ID, job.TargetURL, job.TargetName, job.MaxVideos,
		job.EnableAnalysis, job.Language, job.Status, job.Step, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %v", err)
	}
	return nil
}

const jobColumns = `id, target_url, target_name, max_videos, enable_analysis, language,
	status, current_step, progress, videos_discovered, videos_processed, videos_success,
	videos_failed, created_at, started_at, completed_at, result_file, error_message,
	analysis_error, estimated_remaining`

func scanJob(row interface{ Scan(...any) error }) (*types.Job, error) {
	var (
		job                    types.Job
		startedAt, completedAt sql.NullTime
		remaining              sql.NullInt64
	)
	err := row.Scan(&job.ID, &job.TargetURL, &job.TargetName, &job.MaxVideos,
		&job.EnableAnalysis, &job.Language, &job.Status, &job.Step, &job.Progress,
		&job.Discovered, &job.Processed, &job.Succeeded, &job.Failed, &job.CreatedAt,
		&startedAt, &completedAt, &job.ResultRef, &job.ErrorMessage, &job.AnalysisError,
		&remaining)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if remaining.Valid {
		eta := int(remaining.Int64)
		job.EstimatedRemaining = &eta
	}
	return &job, nil
}

// GetJob retrieves a job by id
func (s *Store) GetJob(jobID string) (*types.Job, error) {
	row := s.db.QueryRow("SELECT "+jobColumns+" FROM jobs WHERE id = ?", jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %v", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs, newest first
func (s *Store) ListJobs(limit int) ([]*types.Job, error) {
	rows, err := s.db.Query("SELECT "+jobColumns+" FROM jobs ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %v", err)
	}
	defer rows.Close()

	var jobs []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %v", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// JobsInStatus returns job ids currently in any of the given statuses, oldest
// first. Used at startup to resume work that was interrupted by a restart.
func (s *Store) JobsInStatus(statuses ...string) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := "SELECT id FROM jobs WHERE status IN (?" +
		repeatParam(len(statuses)-1) + ") ORDER BY created_at ASC"
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = st
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by status: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan job id: %v", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func repeatParam(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

// UpdateJobStatus moves a job to a new status and optionally a new step and
// error message (empty strings leave the previous values). started_at is set
// exactly once, on the first transition into running; completed_at exactly
// once, on the first terminal transition. A job already in a terminal status
// never leaves it: a late write racing a user cancel is a silent no-op.
func (s *Store) UpdateJobStatus(jobID, status, step, errorMessage string) error {
	now := time.Now().UTC()
	query := `
	UPDATE jobs SET
		status = ?,
		current_step = CASE WHEN ? != '' THEN ? ELSE current_step END,
		error_message = CASE WHEN ? != '' THEN ? ELSE error_message END,
		started_at = CASE WHEN ? = 'running' AND started_at IS NULL THEN ? ELSE started_at END,
		completed_at = CASE WHEN ? IN ('completed', 'failed', 'cancelled') AND completed_at IS NULL
			THEN ? ELSE completed_at END
	WHERE id = ? AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	res, err := s.db.Exec(query, status, step, step, errorMessage, errorMessage,
		status, now, status, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %v", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %v", err)
	}
	if n == 0 {
		// Unknown id or an already-terminal job; only the former is an error
		var current string
		err := s.db.QueryRow("SELECT status FROM jobs WHERE id = ?", jobID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read job status: %v", err)
		}
	}
	return nil
}

// SetJobDiscovered records how many videos discovery found for the job
func (s *Store) SetJobDiscovered(jobID string, discovered int) error {
	res, err := s.db.Exec("UPDATE jobs SET videos_discovered = ? WHERE id = ?", discovered, jobID)
	if err != nil {
		return fmt.Errorf("failed to set discovered count: %v", err)
	}
	return requireRow(res)
}

// UpdateJobProgress writes the per-video counters after each processed video
// and recomputes progress and the remaining-time estimate from them. The
// estimate extrapolates the average seconds per processed video and stays
// unset until the first video completes.
func (s *Store) UpdateJobProgress(jobID string, processed, succeeded, failed int) error {
	var (
		discovered int
		startedAt  sql.NullTime
	)
	row := s.db.QueryRow("SELECT videos_discovered, started_at FROM jobs WHERE id = ?", jobID)
	if err := row.Scan(&discovered, &startedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read job counters: %v", err)
	}

	progress := 0
	if discovered > 0 {
		progress = processed * 100 / discovered
		if progress > 100 {
			progress = 100
		}
	}

	var remaining sql.NullInt64
	if processed > 0 && startedAt.Valid {
		elapsed := time.Since(startedAt.Time).Seconds()
		perVideo := elapsed / float64(processed)
		remaining = sql.NullInt64{
			Int64: int64(perVideo * float64(discovered-processed)),
			Valid: true,
		}
	}

	query := `
	UPDATE jobs SET
		videos_processed = ?,
		videos_success = ?,
		videos_failed = ?,
		progress = ?,
		estimated_remaining = COALESCE(?, estimated_remaining)
	WHERE id = ?
	`
	res, err := s.db.Exec(query, processed, succeeded, failed, progress, remaining, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %v", err)
	}
	return requireRow(res)
}

// SetJobResult records the path of the persisted result artifact
func (s *Store) SetJobResult(jobID, resultRef string) error {
	res, err := s.db.Exec("UPDATE jobs SET result_file = ? WHERE id = ?", resultRef, jobID)
	if err != nil {
		return fmt.Errorf("failed to set result file: %v", err)
	}
	return requireRow(res)
}

// SetJobAnalysisError records an analysis failure without touching the job's
// own error field; analysis is an enrichment layer, not the primary artifact.
func (s *Store) SetJobAnalysisError(jobID, message string) error {
	res, err := s.db.Exec("UPDATE jobs SET analysis_error = ? WHERE id = ?", message, jobID)
	if err != nil {
		return fmt.Errorf("failed to set analysis error: %v", err)
	}
	return requireRow(res)
}

// DeleteJob removes a job and, via the foreign key cascade, all of its videos
func (s *Store) DeleteJob(jobID string) error {
	res, err := s.db.Exec("DELETE FROM jobs WHERE id = ?", jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %v", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %v", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

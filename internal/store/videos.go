package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// CreateVideos inserts the discovered video stubs for a job. Stubs already
// present for the job (a re-run after a crash) are left untouched so partial
// progress survives.
func (s *Store) CreateVideos(jobID string, stubs []types.VideoStub) error {
	now := time.Now().UTC()
	query := `
	INSERT OR IGNORE INTO job_videos (job_id, video_id, title, url, created_at)
	VALUES (?, ?, ?, ?, ?)
	`
	for _, stub := range stubs {
		if _, err := s.db.Exec(query, jobID, stub.VideoID, stub.Title, stub.URL, now); err != nil {
			return fmt.Errorf("failed to create video %s: %v", stub.VideoID, err)
		}
	}
	return nil
}

const videoColumns = `id, job_id, video_id, title, url, processing_status, transcript,
	confidence, language, media_path, media_size, retry_count, retry_history,
	error_message, created_at, processed_at`

func scanVideo(row interface{ Scan(...any) error }) (*types.Video, error) {
	var (
		video       types.Video
		history     string
		processedAt sql.NullTime
	)
	err := row.Scan(&video.ID, &video.JobID, &video.VideoID, &video.Title, &video.URL,
		&video.Status, &video.Transcript, &video.Confidence, &video.Language,
		&video.MediaPath, &video.MediaSize, &video.RetryCount, &history,
		&video.ErrorMessage, &video.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		video.ProcessedAt = &processedAt.Time
	}
	if history != "" && history != "[]" {
		if err := json.Unmarshal([]byte(history), &video.RetryHistory); err != nil {
			return nil, fmt.Errorf("failed to decode retry history: %v", err)
		}
	}
	return &video, nil
}

// ListVideos returns a job's videos in discovery order
func (s *Store) ListVideos(jobID string) ([]*types.Video, error) {
	rows, err := s.db.Query("SELECT "+videoColumns+" FROM job_videos WHERE job_id = ? ORDER BY id ASC", jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %v", err)
	}
	defer rows.Close()

	var videos []*types.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %v", err)
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// GetVideo retrieves one video row by id
func (s *Store) GetVideo(id int64) (*types.Video, error) {
	row := s.db.QueryRow("SELECT "+videoColumns+" FROM job_videos WHERE id = ?", id)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %v", err)
	}
	return video, nil
}

// SetVideoProcessing marks a video as in flight
func (s *Store) SetVideoProcessing(id int64) error {
	res, err := s.db.Exec("UPDATE job_videos SET processing_status = ? WHERE id = ?",
		types.VideoProcessing, id)
	if err != nil {
		return fmt.Errorf("failed to mark video processing: %v", err)
	}
	return requireRow(res)
}

// SetVideoMedia records the fetched media file. The file stays on disk after
// transcription so it can be exported later; cleanup is a separate operation.
func (s *Store) SetVideoMedia(id int64, path string, size int64) error {
	res, err := s.db.Exec("UPDATE job_videos SET media_path = ?, media_size = ? WHERE id = ?",
		path, size, id)
	if err != nil {
		return fmt.Errorf("failed to set media info: %v", err)
	}
	return requireRow(res)
}

// SetVideoTranscript stores a successful transcription and completes the video
func (s *Store) SetVideoTranscript(id int64, transcript string, confidence float64, language string) error {
	query := `
	UPDATE job_videos SET
		transcript = ?, confidence = ?, language = ?,
		processing_status = ?, processed_at = ?
	WHERE id = ?
	`
	res, err := s.db.Exec(query, transcript, confidence, language,
		types.VideoCompleted, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set transcript: %v", err)
	}
	return requireRow(res)
}

// MarkVideoFailed moves a video to failed with its final error message
func (s *Store) MarkVideoFailed(id int64, message string) error {
	res, err := s.db.Exec("UPDATE job_videos SET processing_status = ?, error_message = ? WHERE id = ?",
		types.VideoFailed, message, id)
	if err != nil {
		return fmt.Errorf("failed to mark video failed: %v", err)
	}
	return requireRow(res)
}

// AppendVideoRetryError records one failed processing attempt: the retry
// counter increments and an entry lands in the bounded history, evicting the
// oldest once MaxRetryHistory is reached.
func (s *Store) AppendVideoRetryError(id int64, attempt int, message string) error {
	video, err := s.GetVideo(id)
	if err != nil {
		return err
	}

	history := append(video.RetryHistory, types.RetryEntry{
		Attempt:   attempt,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if len(history) > types.MaxRetryHistory {
		history = history[len(history)-types.MaxRetryHistory:]
	}

	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode retry history: %v", err)
	}

	res, err := s.db.Exec("UPDATE job_videos SET retry_count = retry_count + 1, retry_history = ? WHERE id = ?",
		string(encoded), id)
	if err != nil {
		return fmt.Errorf("failed to append retry error: %v", err)
	}
	return requireRow(res)
}

// SucceededVideoIDs returns the ids of videos already transcribed in any job
// against the same target. Discovery passes them as an exclusion list so a
// new job never re-transcribes content a previous run already handled.
func (s *Store) SucceededVideoIDs(targetURL string) ([]string, error) {
	query := `
	SELECT DISTINCT v.video_id
	FROM job_videos v
	JOIN jobs j ON v.job_id = j.id
	WHERE j.target_url = ? AND v.processing_status = ?
	`
	rows, err := s.db.Query(query, targetURL, types.VideoCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query succeeded videos: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan video id: %v", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MediaPaths returns every recorded media file path, for the cleanup sweep
func (s *Store) MediaPaths() ([]string, error) {
	rows, err := s.db.Query("SELECT media_path FROM job_videos WHERE media_path != ''")
	if err != nil {
		return nil, fmt.Errorf("failed to query media paths: %v", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan media path: %v", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

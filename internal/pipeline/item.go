package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/codebuildervaibhav/creator-analyzer/internal/retry"
	"github.com/codebuildervaibhav/creator-analyzer/internal/store"
	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// Fetcher acquires a video's media onto local disk
type Fetcher interface {
	Fetch(ctx context.Context, stub types.VideoStub) (types.Media, error)
}

// Transcriber converts a media file into text
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath, language string) (types.Transcript, error)
}

// ItemProcessor runs the per-video part of the pipeline: fetch the media,
// transcribe it, record the outcome. Fetch and transcription are retried
// independently so a flaky transcription never forces a redundant re-download.
type ItemProcessor struct {
	store       *store.Store
	fetcher     Fetcher
	transcriber Transcriber
	retry       retry.Policy

	// retryLimit caps how many recorded failures a video may accumulate
	// across pipeline runs before it is skipped entirely. It is independent
	// of the retry policy's per-call attempt budget.
	retryLimit int
}

// NewItemProcessor creates a per-video processor
func NewItemProcessor(st *store.Store, fetcher Fetcher, transcriber Transcriber, policy retry.Policy, retryLimit int) *ItemProcessor {
	return &ItemProcessor{
		store:       st,
		fetcher:     fetcher,
		transcriber: transcriber,
		retry:       policy,
		retryLimit:  retryLimit,
	}
}

// Outcome summarizes one video's processing result
type Outcome struct {
	Skipped bool
	Success bool
	Err     error
}

// Process handles one video end to end. The returned error aborts the whole
// job and is reserved for state-store failures and cancellation; ordinary
// fetch or transcription failures are recorded on the video and reported in
// Outcome so the pipeline can move on to the next one.
func (p *ItemProcessor) Process(ctx context.Context, job *types.Job, video *types.Video) (Outcome, error) {
	if video.Status == types.VideoCompleted {
		// Idempotent re-run: never re-transcribe a finished video
		return Outcome{Skipped: true, Success: true}, nil
	}
	if video.Status == types.VideoFailed && video.RetryCount >= p.retryLimit {
		log.Printf("Skipping video %s: retry limit reached (%d failures)", video.VideoID, video.RetryCount)
		return Outcome{Skipped: true}, nil
	}

	if err := p.store.SetVideoProcessing(video.ID); err != nil {
		return Outcome{}, err
	}

	stub := types.VideoStub{VideoID: video.VideoID, Title: video.Title, URL: video.URL}

	var media types.Media
	err := p.retry.Do(ctx, "fetch "+video.VideoID, func() error {
		var fetchErr error
		media, fetchErr = p.fetcher.Fetch(ctx, stub)
		return fetchErr
	})
	if err != nil {
		if ctx.Err() != nil {
			// A user cancel kills the in-flight call; that is not a real
			// failure and must not consume the video's retry budget. The
			// video stays as-is for the next run.
			return Outcome{}, ctx.Err()
		}
		return p.recordFailure(video, fmt.Errorf("fetch failed: %v", err))
	}

	if err := p.store.SetVideoMedia(video.ID, media.Path, media.Size); err != nil {
		return Outcome{}, err
	}

	var transcript types.Transcript
	err = p.retry.Do(ctx, "transcribe "+video.VideoID, func() error {
		var trErr error
		transcript, trErr = p.transcriber.Transcribe(ctx, media.Path, job.Language)
		return trErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return p.recordFailure(video, fmt.Errorf("transcription failed: %v", err))
	}

	if err := p.store.SetVideoTranscript(video.ID, transcript.Text, transcript.Confidence, transcript.Language); err != nil {
		return Outcome{}, err
	}

	log.Printf("Video %s transcribed (%d chars, confidence %.2f)",
		video.VideoID, len(transcript.Text), transcript.Confidence)
	return Outcome{Success: true}, nil
}

// recordFailure writes the retry-history entry and moves the video to failed
func (p *ItemProcessor) recordFailure(video *types.Video, cause error) (Outcome, error) {
	log.Printf("Video %s failed: %v", video.VideoID, cause)
	if err := p.store.AppendVideoRetryError(video.ID, video.RetryCount, cause.Error()); err != nil {
		return Outcome{}, err
	}
	if err := p.store.MarkVideoFailed(video.ID, cause.Error()); err != nil {
		return Outcome{}, err
	}
	return Outcome{Err: cause}, nil
}

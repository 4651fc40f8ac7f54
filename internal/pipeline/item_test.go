package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/codebuildervaibhav/creator-analyzer/internal/store"
	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

func seedVideo(t *testing.T, st *store.Store, jobID string) *types.Video {
	t.Helper()
	if err := st.CreateVideos(jobID, stubs(1)); err != nil {
		t.Fatalf("CreateVideos: %v", err)
	}
	videos, err := st.ListVideos(jobID)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	return videos[0]
}

func TestProcessSkipsCompletedVideo(t *testing.T) {
	st := newTestStore(t)
	job := createJob(t, st, "job-1", false)
	video := seedVideo(t, st, job.ID)
	st.SetVideoTranscript(video.ID, "already done", 0.9, "en")
	video, _ = st.GetVideo(video.ID)

	fetchCalls := 0
	fetcher := fetcherFunc(func(ctx context.Context, stub types.VideoStub) (types.Media, error) {
		fetchCalls++
		return types.Media{}, nil
	})

	items := NewItemProcessor(st, fetcher, okTranscriber(), fastPolicy(1), 3)
	outcome, err := items.Process(context.Background(), job, video)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !outcome.Skipped || !outcome.Success {
		t.Errorf("outcome = %+v, want skipped and counted as succeeded", outcome)
	}
	if fetchCalls != 0 {
		t.Errorf("fetch called %d times for a completed video, want 0", fetchCalls)
	}
}

func TestProcessSkipsVideoAtRetryLimit(t *testing.T) {
	st := newTestStore(t)
	job := createJob(t, st, "job-1", false)
	video := seedVideo(t, st, job.ID)

	for i := 0; i < 3; i++ {
		st.AppendVideoRetryError(video.ID, i, "boom")
	}
	st.MarkVideoFailed(video.ID, "boom")
	video, _ = st.GetVideo(video.ID)

	fetchCalls := 0
	fetcher := fetcherFunc(func(ctx context.Context, stub types.VideoStub) (types.Media, error) {
		fetchCalls++
		return types.Media{}, nil
	})

	items := NewItemProcessor(st, fetcher, okTranscriber(), fastPolicy(1), 3)
	outcome, err := items.Process(context.Background(), job, video)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !outcome.Skipped || outcome.Success {
		t.Errorf("outcome = %+v, want skipped without success", outcome)
	}
	if fetchCalls != 0 {
		t.Errorf("fetch called %d times past the retry limit, want 0", fetchCalls)
	}
}

func TestProcessFailedVideoBelowLimitRetries(t *testing.T) {
	st := newTestStore(t)
	job := createJob(t, st, "job-1", false)
	video := seedVideo(t, st, job.ID)

	st.AppendVideoRetryError(video.ID, 0, "first failure")
	st.MarkVideoFailed(video.ID, "first failure")
	video, _ = st.GetVideo(video.ID)

	items := NewItemProcessor(st, okFetcher(t), okTranscriber(), fastPolicy(1), 3)
	outcome, err := items.Process(context.Background(), job, video)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !outcome.Success || outcome.Skipped {
		t.Errorf("outcome = %+v, want a fresh successful attempt", outcome)
	}

	video, _ = st.GetVideo(video.ID)
	if video.Status != types.VideoCompleted {
		t.Errorf("status = %q, want completed on the retry pass", video.Status)
	}
}

func TestProcessFetchExhaustionRecordsFailure(t *testing.T) {
	st := newTestStore(t)
	job := createJob(t, st, "job-1", false)
	video := seedVideo(t, st, job.ID)

	fetchCalls := 0
	fetcher := fetcherFunc(func(ctx context.Context, stub types.VideoStub) (types.Media, error) {
		fetchCalls++
		return types.Media{}, errors.New("stream gone")
	})

	items := NewItemProcessor(st, fetcher, okTranscriber(), fastPolicy(3), 5)
	outcome, err := items.Process(context.Background(), job, video)
	if err != nil {
		t.Fatalf("Process: %v, fetch failure is not a store failure", err)
	}
	if outcome.Err == nil {
		t.Fatal("outcome.Err = nil, want the recorded fetch failure")
	}
	if fetchCalls != 3 {
		t.Errorf("fetch attempted %d times, want the policy's 3", fetchCalls)
	}

	video, _ = st.GetVideo(video.ID)
	if video.Status != types.VideoFailed {
		t.Errorf("status = %q, want failed", video.Status)
	}
	// One Process call records one history entry regardless of inner attempts
	if video.RetryCount != 1 || len(video.RetryHistory) != 1 {
		t.Errorf("retry bookkeeping = count %d, history %d, want 1/1", video.RetryCount, len(video.RetryHistory))
	}
}

func TestProcessTranscribeRetriedWithoutRefetch(t *testing.T) {
	st := newTestStore(t)
	job := createJob(t, st, "job-1", false)
	video := seedVideo(t, st, job.ID)

	fetchCalls := 0
	good := okFetcher(t)
	fetcher := fetcherFunc(func(ctx context.Context, stub types.VideoStub) (types.Media, error) {
		fetchCalls++
		return good.Fetch(ctx, stub)
	})

	transcribeCalls := 0
	transcriber := transcriberFunc(func(ctx context.Context, mediaPath, language string) (types.Transcript, error) {
		transcribeCalls++
		if transcribeCalls < 3 {
			return types.Transcript{}, errors.New("whisper crashed")
		}
		return types.Transcript{Text: "recovered", Confidence: 0.8, Language: "en"}, nil
	})

	items := NewItemProcessor(st, fetcher, transcriber, fastPolicy(3), 3)
	outcome, err := items.Process(context.Background(), job, video)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("outcome = %+v, want success after transcription retries", outcome)
	}
	// The transcription retries must not re-download the media
	if fetchCalls != 1 {
		t.Errorf("fetch called %d times, want 1", fetchCalls)
	}
	if transcribeCalls != 3 {
		t.Errorf("transcribe called %d times, want 3", transcribeCalls)
	}

	video, _ = st.GetVideo(video.ID)
	if video.Transcript != "recovered" {
		t.Errorf("transcript = %q, want the recovered text", video.Transcript)
	}
}

func TestProcessCancelledMidFetchKeepsRetryBudget(t *testing.T) {
	st := newTestStore(t)
	job := createJob(t, st, "job-1", false)
	video := seedVideo(t, st, job.ID)

	ctx, cancel := context.WithCancel(context.Background())
	fetcher := fetcherFunc(func(c context.Context, stub types.VideoStub) (types.Media, error) {
		// The job context is threaded into the fetch, so a user cancel kills
		// the in-flight call and surfaces here as an error
		cancel()
		return types.Media{}, errors.New("context canceled")
	})

	items := NewItemProcessor(st, fetcher, okTranscriber(), fastPolicy(3), 3)
	_, err := items.Process(ctx, job, video)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process err = %v, want context.Canceled", err)
	}

	video, _ = st.GetVideo(video.ID)
	if video.Status == types.VideoFailed {
		t.Errorf("status = %q, a cancelled run must not mark the video failed", video.Status)
	}
	if video.RetryCount != 0 || len(video.RetryHistory) != 0 {
		t.Errorf("cancellation consumed the retry budget: count %d, history %d",
			video.RetryCount, len(video.RetryHistory))
	}
}

func TestProcessCancelledMidTranscribeKeepsRetryBudget(t *testing.T) {
	st := newTestStore(t)
	job := createJob(t, st, "job-1", false)
	video := seedVideo(t, st, job.ID)

	ctx, cancel := context.WithCancel(context.Background())
	transcriber := transcriberFunc(func(c context.Context, mediaPath, language string) (types.Transcript, error) {
		cancel()
		return types.Transcript{}, errors.New("signal: killed")
	})

	items := NewItemProcessor(st, okFetcher(t), transcriber, fastPolicy(3), 3)
	_, err := items.Process(ctx, job, video)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process err = %v, want context.Canceled", err)
	}

	video, _ = st.GetVideo(video.ID)
	if video.Status == types.VideoFailed || video.RetryCount != 0 {
		t.Errorf("cancelled transcription recorded as failure: status %q, count %d",
			video.Status, video.RetryCount)
	}
}

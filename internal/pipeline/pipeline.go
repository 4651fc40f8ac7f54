package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/codebuildervaibhav/creator-analyzer/internal/store"
	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// Discoverer finds video links on a creator's feed page
type Discoverer interface {
	Discover(ctx context.Context, targetURL string, max int, excludeIDs []string) ([]types.VideoStub, error)
}

// Analyzer turns the transcript corpus into a style report
type Analyzer interface {
	Analyze(ctx context.Context, creatorName string, inputs []types.AnalysisInput) (types.Report, error)
}

// ResultWriter persists the immutable result artifact of a finished job
type ResultWriter interface {
	Write(job *types.Job, videos []*types.Video, report string) (string, error)
}

// Pipeline runs the four stages of one job: discover the feed, fetch and
// transcribe each video, run the style analysis, persist the result. Every
// transition is written to the store as it happens so progress survives a
// crash. Cancellation is cooperative: the context is checked between stages
// and between videos, never mid-call.
type Pipeline struct {
	store      *store.Store
	discoverer Discoverer
	analyzer   Analyzer // nil disables the analysis pass entirely
	items      *ItemProcessor
	results    ResultWriter
}

// New creates a job pipeline
func New(st *store.Store, discoverer Discoverer, analyzer Analyzer, items *ItemProcessor, results ResultWriter) *Pipeline {
	return &Pipeline{
		store:      st,
		discoverer: discoverer,
		analyzer:   analyzer,
		items:      items,
		results:    results,
	}
}

// Run executes the full pipeline for one job. A non-nil return means the job
// failed (or was cancelled, reported as the context error); the scheduler is
// responsible for converting failures into the terminal state write.
func (p *Pipeline) Run(ctx context.Context, jobID string) error {
	job, err := p.store.GetJob(jobID)
	if err != nil {
		return err
	}

	log.Printf("Job %s: starting pipeline for %s", jobID, job.TargetURL)
	if err := p.store.UpdateJobStatus(jobID, types.JobRunning, types.StepInitializing, ""); err != nil {
		return err
	}

	videos, err := p.discover(ctx, job)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		log.Printf("Job %s: cancelled before transcription", jobID)
		return err
	}

	processed, succeeded, failed, err := p.processVideos(ctx, job, videos)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		log.Printf("Job %s: cancelled before finalizing (%d/%d videos done)", jobID, processed, len(videos))
		return err
	}

	if succeeded == 0 {
		return fmt.Errorf("all %d videos failed processing", processed)
	}

	return p.finalize(ctx, job, succeeded, failed)
}

// discover runs the Discovering stage and persists the found stubs
func (p *Pipeline) discover(ctx context.Context, job *types.Job) ([]*types.Video, error) {
	if err := p.store.UpdateJobStatus(job.ID, types.JobRunning, types.StepDiscovering, ""); err != nil {
		return nil, err
	}

	exclude, err := p.store.SucceededVideoIDs(job.TargetURL)
	if err != nil {
		return nil, err
	}

	stubs, err := p.discoverer.Discover(ctx, job.TargetURL, job.MaxVideos, exclude)
	if err != nil {
		return nil, fmt.Errorf("video discovery failed: %v", err)
	}
	if len(stubs) == 0 {
		return nil, fmt.Errorf("no new videos discovered for %s (%d already processed)",
			job.TargetURL, len(exclude))
	}

	// Persist the stubs before touching any media so a crash mid-job leaves
	// a resumable record.
	if err := p.store.UpdateJobStatus(job.ID, types.JobRunning, types.StepAcquiring, ""); err != nil {
		return nil, err
	}
	if err := p.store.CreateVideos(job.ID, stubs); err != nil {
		return nil, err
	}

	videos, err := p.store.ListVideos(job.ID)
	if err != nil {
		return nil, err
	}
	if err := p.store.SetJobDiscovered(job.ID, len(videos)); err != nil {
		return nil, err
	}

	log.Printf("Job %s: discovered %d videos (%d excluded as already processed)",
		job.ID, len(videos), len(exclude))
	return videos, nil
}

// processVideos runs the Acquiring/Transcribing stage sequentially. The
// browser session downstream tolerates one navigation at a time, so videos
// are never fanned out within a job.
func (p *Pipeline) processVideos(ctx context.Context, job *types.Job, videos []*types.Video) (processed, succeeded, failed int, err error) {
	if err := p.store.UpdateJobStatus(job.ID, types.JobRunning, types.StepTranscribing, ""); err != nil {
		return 0, 0, 0, err
	}

	for i, video := range videos {
		if ctx.Err() != nil {
			// Cooperative cancellation: already-persisted results stay intact
			return processed, succeeded, failed, nil
		}

		log.Printf("Job %s: processing video %d/%d: %s", job.ID, i+1, len(videos), video.VideoID)

		outcome, procErr := p.items.Process(ctx, job, video)
		if procErr != nil {
			return processed, succeeded, failed, procErr
		}

		switch {
		case outcome.Skipped && outcome.Success:
			// Counts as succeeded so the dedup/skip rules keep the invariant
			processed++
			succeeded++
		case outcome.Skipped:
			processed++
			failed++
		case outcome.Success:
			processed++
			succeeded++
		default:
			processed++
			failed++
		}

		if err := p.store.UpdateJobProgress(job.ID, processed, succeeded, failed); err != nil {
			return processed, succeeded, failed, err
		}
	}

	log.Printf("Job %s: transcription done (%d succeeded, %d failed)", job.ID, succeeded, failed)
	return processed, succeeded, failed, nil
}

// finalize runs the analysis pass and writes the result artifact. Analysis
// failure is recorded but never fails the job: the transcript corpus is the
// primary artifact, the report an enrichment.
func (p *Pipeline) finalize(ctx context.Context, job *types.Job, succeeded, failed int) error {
	if err := p.store.UpdateJobStatus(job.ID, types.JobRunning, types.StepFinalizing, ""); err != nil {
		return err
	}

	videos, err := p.store.ListVideos(job.ID)
	if err != nil {
		return err
	}

	var report string
	if job.EnableAnalysis && p.analyzer != nil {
		var inputs []types.AnalysisInput
		for _, v := range videos {
			if v.Transcript != "" {
				inputs = append(inputs, types.AnalysisInput{Title: v.Title, Transcript: v.Transcript})
			}
		}

		creatorName := job.TargetName
		if creatorName == "" {
			creatorName = job.TargetURL
		}

		result, analyzeErr := p.analyzer.Analyze(ctx, creatorName, inputs)
		if analyzeErr != nil {
			log.Printf("Job %s: analysis failed (job continues): %v", job.ID, analyzeErr)
			if err := p.store.SetJobAnalysisError(job.ID, analyzeErr.Error()); err != nil {
				return err
			}
		} else {
			report = result.Body
		}
	}

	resultRef, err := p.results.Write(job, videos, report)
	if err != nil {
		return fmt.Errorf("failed to persist result: %v", err)
	}
	if err := p.store.SetJobResult(job.ID, resultRef); err != nil {
		return err
	}

	// A cancel that landed during finalizing owns the terminal state
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.store.UpdateJobStatus(job.ID, types.JobCompleted, "", ""); err != nil {
		return err
	}

	log.Printf("Job %s: completed (%d succeeded, %d failed, result: %s)",
		job.ID, succeeded, failed, resultRef)
	return nil
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// ErrAlreadyRunning is returned when a job id is already running or queued.
var ErrAlreadyRunning = errors.New("job already running or queued")

// JobRunner executes the pipeline for one job
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// StatusStore is the slice of the state store the scheduler needs: writing
// the terminal failed state when a pipeline errors or panics.
type StatusStore interface {
	UpdateJobStatus(jobID, status, step, errorMessage string) error
}

// execution tracks one admitted job. The scheduler never owns job data, only
// this orchestration handle; durable state lives in the store.
type execution struct {
	cancel    context.CancelFunc
	startedAt time.Time
}

type queuedJob struct {
	jobID       string
	submittedAt time.Time
}

// Scheduler admits up to capacity jobs at a time and queues the rest in FIFO
// order. One mutex guards the running map and the wait queue; admission,
// removal and promotion all happen under it, so capacity is never
// oversubscribed and the queue never starves.
type Scheduler struct {
	mu       sync.Mutex
	capacity int
	runner   JobRunner
	store    StatusStore
	running  map[string]*execution
	waiting  []queuedJob
	wg       sync.WaitGroup
}

// New creates a scheduler with the given concurrent-job capacity
func New(capacity int, runner JobRunner, store StatusStore) *Scheduler {
	if capacity <= 0 {
		capacity = 1
	}
	return &Scheduler{
		capacity: capacity,
		runner:   runner,
		store:    store,
		running:  make(map[string]*execution),
	}
}

// Submit admits the job immediately if a slot is free, otherwise appends it
// to the wait queue. Either way the job is accepted; ErrAlreadyRunning is
// returned only when the id is already tracked.
func (s *Scheduler) Submit(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.running[jobID]; ok {
		return ErrAlreadyRunning
	}
	for _, q := range s.waiting {
		if q.jobID == jobID {
			return ErrAlreadyRunning
		}
	}

	if len(s.running) < s.capacity {
		s.launch(jobID)
		log.Printf("Job %s admitted (%d/%d slots in use)", jobID, len(s.running), s.capacity)
	} else {
		s.waiting = append(s.waiting, queuedJob{jobID: jobID, submittedAt: time.Now()})
		log.Printf("Job %s queued (position %d)", jobID, len(s.waiting))
	}
	return nil
}

// launch starts the managed execution goroutine. Caller must hold s.mu.
func (s *Scheduler) launch(jobID string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.running[jobID] = &execution{cancel: cancel, startedAt: time.Now()}
	s.wg.Add(1)
	go s.execute(ctx, jobID)
}

// execute runs one job to completion and then promotes the next queued job.
// A panicking or erroring pipeline is converted into a terminal failed write;
// the slot is always released.
func (s *Scheduler) execute(ctx context.Context, jobID string) {
	defer s.wg.Done()
	defer s.finish(jobID)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in job %s: %v\n%s", jobID, r, string(debug.Stack()))
			s.markFailed(jobID, fmt.Sprintf("pipeline panic: %v", r))
		}
	}()

	err := s.runner.Run(ctx, jobID)
	if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		log.Printf("Job %s failed: %v", jobID, err)
		s.markFailed(jobID, err.Error())
	}
}

// markFailed writes the terminal failed state with the causal error message
func (s *Scheduler) markFailed(jobID, message string) {
	if err := s.store.UpdateJobStatus(jobID, types.JobFailed, "", message); err != nil {
		log.Printf("Failed to persist failure of job %s: %v", jobID, err)
	}
}

// finish releases the job's slot and, under the same critical section,
// promotes the head of the wait queue. A cancelled job has already been
// untracked and promoted over, in which case this is a no-op.
func (s *Scheduler) finish(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.running[jobID]; !ok {
		return
	}
	delete(s.running, jobID)
	s.promote()
}

// promote fills free slots from the wait queue in FIFO order. Caller must
// hold s.mu.
func (s *Scheduler) promote() {
	for len(s.running) < s.capacity && len(s.waiting) > 0 {
		next := s.waiting[0]
		s.waiting = s.waiting[1:]
		s.launch(next.jobID)
		log.Printf("Job %s promoted from queue after %s wait",
			next.jobID, time.Since(next.submittedAt).Round(time.Second))
	}
}

// Cancel signals cancellation to a running job (cooperative: the pipeline
// exits at the next stage or video boundary) or removes a queued job before
// it ever starts. The store transition to cancelled is the caller's job.
// Returns false when the id is not tracked; not-found is not an error here.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec, ok := s.running[jobID]; ok {
		exec.cancel()
		delete(s.running, jobID)
		// Promotion happens here, not in finish: the cancelled goroutine is
		// only tearing down, so the slot can serve the next job. Goroutines
		// may briefly overlap C while that teardown unwinds.
		s.promote()
		log.Printf("Job %s cancellation signalled", jobID)
		return true
	}

	for i, q := range s.waiting {
		if q.jobID == jobID {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			log.Printf("Job %s removed from queue before starting", jobID)
			return true
		}
	}

	return false
}

// Status is a point-in-time snapshot of the scheduler
type Status struct {
	RunningCount int      `json:"running_count"`
	QueuedCount  int      `json:"queued_count"`
	Capacity     int      `json:"capacity"`
	RunningIDs   []string `json:"running_ids"`
	QueuedIDs    []string `json:"queued_ids"`
}

// QueueStatus reports the current admission state, consistent with a lock
// acquired at call time
func (s *Scheduler) QueueStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	runningIDs := make([]string, 0, len(s.running))
	for id := range s.running {
		runningIDs = append(runningIDs, id)
	}
	sort.Strings(runningIDs)

	queuedIDs := make([]string, 0, len(s.waiting))
	for _, q := range s.waiting {
		queuedIDs = append(queuedIDs, q.jobID)
	}

	return Status{
		RunningCount: len(runningIDs),
		QueuedCount:  len(queuedIDs),
		Capacity:     s.capacity,
		RunningIDs:   runningIDs,
		QueuedIDs:    queuedIDs,
	}
}

// Wait blocks until every currently running execution has finished. Used by
// tests and graceful shutdown.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

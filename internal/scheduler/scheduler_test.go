package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// blockingRunner blocks each Run call until the test releases it, so tests
// control exactly when slots free up.
type blockingRunner struct {
	mu      sync.Mutex
	release map[string]chan error
	starts  []string
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(map[string]chan error)}
}

func (r *blockingRunner) Run(ctx context.Context, jobID string) error {
	r.mu.Lock()
	done := make(chan error, 1)
	r.release[jobID] = done
	r.starts = append(r.starts, jobID)
	r.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *blockingRunner) finish(jobID string, err error) {
	r.mu.Lock()
	done := r.release[jobID]
	r.mu.Unlock()
	done <- err
}

func (r *blockingRunner) started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.starts))
	copy(out, r.starts)
	return out
}

type statusUpdate struct {
	jobID, status, step, message string
}

type recordingStore struct {
	mu      sync.Mutex
	updates []statusUpdate
}

func (s *recordingStore) UpdateJobStatus(jobID, status, step, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, statusUpdate{jobID, status, step, errorMessage})
	return nil
}

func (s *recordingStore) failedMessage(jobID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.updates {
		if u.jobID == jobID && u.status == types.JobFailed {
			return u.message, true
		}
	}
	return "", false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCapacityEnforcedAndFIFOPromotion(t *testing.T) {
	runner := newBlockingRunner()
	sched := New(2, runner, &recordingStore{})

	for i := 1; i <= 4; i++ {
		if err := sched.Submit(fmt.Sprintf("job-%d", i)); err != nil {
			t.Fatalf("Submit job-%d: %v", i, err)
		}
	}

	waitFor(t, "both slots in use", func() bool { return len(runner.started()) == 2 })

	st := sched.QueueStatus()
	if st.RunningCount != 2 || st.QueuedCount != 2 {
		t.Fatalf("status = %d running / %d queued, want 2/2", st.RunningCount, st.QueuedCount)
	}
	if st.QueuedIDs[0] != "job-3" || st.QueuedIDs[1] != "job-4" {
		t.Fatalf("queue order = %v, want [job-3 job-4]", st.QueuedIDs)
	}

	// Releasing a slot must promote the queue head, not the tail
	runner.finish("job-1", nil)
	waitFor(t, "job-3 promoted", func() bool {
		starts := runner.started()
		return len(starts) == 3 && starts[2] == "job-3"
	})

	st = sched.QueueStatus()
	if st.RunningCount != 2 || st.QueuedCount != 1 {
		t.Fatalf("after promotion: %d running / %d queued, want 2/1", st.RunningCount, st.QueuedCount)
	}

	runner.finish("job-2", nil)
	waitFor(t, "job-4 promoted", func() bool { return len(runner.started()) == 4 })

	runner.finish("job-3", nil)
	runner.finish("job-4", nil)
	sched.Wait()
}

func TestSubmitDuplicateRejected(t *testing.T) {
	runner := newBlockingRunner()
	sched := New(1, runner, &recordingStore{})

	if err := sched.Submit("job-a"); err != nil {
		t.Fatalf("Submit job-a: %v", err)
	}
	waitFor(t, "job-a running", func() bool { return len(runner.started()) == 1 })

	if err := sched.Submit("job-a"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("resubmitting running job: err = %v, want ErrAlreadyRunning", err)
	}

	if err := sched.Submit("job-b"); err != nil {
		t.Fatalf("Submit job-b: %v", err)
	}
	if err := sched.Submit("job-b"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("resubmitting queued job: err = %v, want ErrAlreadyRunning", err)
	}

	runner.finish("job-a", nil)
	waitFor(t, "job-b promoted", func() bool { return len(runner.started()) == 2 })
	runner.finish("job-b", nil)
	sched.Wait()
}

func TestCancelQueuedJobNeverRuns(t *testing.T) {
	runner := newBlockingRunner()
	sched := New(1, runner, &recordingStore{})

	sched.Submit("job-a")
	sched.Submit("job-b")
	sched.Submit("job-c")
	waitFor(t, "job-a running", func() bool { return len(runner.started()) == 1 })

	if !sched.Cancel("job-b") {
		t.Fatal("Cancel(job-b) = false, want true for a queued job")
	}

	runner.finish("job-a", nil)
	waitFor(t, "job-c promoted", func() bool { return len(runner.started()) == 2 })
	runner.finish("job-c", nil)
	sched.Wait()

	for _, id := range runner.started() {
		if id == "job-b" {
			t.Fatal("cancelled queued job-b was started anyway")
		}
	}
}

func TestCancelRunningJobPromotesAndSkipsFailedWrite(t *testing.T) {
	runner := newBlockingRunner()
	store := &recordingStore{}
	sched := New(1, runner, store)

	sched.Submit("job-a")
	sched.Submit("job-b")
	waitFor(t, "job-a running", func() bool { return len(runner.started()) == 1 })

	if !sched.Cancel("job-a") {
		t.Fatal("Cancel(job-a) = false, want true for a running job")
	}

	// The freed slot goes to job-b even before job-a's goroutine unwinds
	waitFor(t, "job-b promoted", func() bool { return len(runner.started()) == 2 })
	runner.finish("job-b", nil)
	sched.Wait()

	// A cancelled pipeline returns ctx.Err(); that must not be recorded as a
	// failure, the caller owns the cancelled transition.
	if msg, ok := store.failedMessage("job-a"); ok {
		t.Errorf("cancelled job-a was marked failed: %q", msg)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	sched := New(1, newBlockingRunner(), &recordingStore{})
	if sched.Cancel("nope") {
		t.Error("Cancel of unknown id = true, want false")
	}
}

func TestPipelineErrorMarksJobFailed(t *testing.T) {
	runner := newBlockingRunner()
	store := &recordingStore{}
	sched := New(1, runner, store)

	sched.Submit("job-a")
	waitFor(t, "job-a running", func() bool { return len(runner.started()) == 1 })

	runner.finish("job-a", errors.New("discovery exploded"))
	sched.Wait()

	msg, ok := store.failedMessage("job-a")
	if !ok {
		t.Fatal("failed pipeline did not produce a terminal failed write")
	}
	if msg != "discovery exploded" {
		t.Errorf("failed message = %q, want the pipeline error", msg)
	}
}

type panickingRunner struct{}

func (panickingRunner) Run(ctx context.Context, jobID string) error {
	panic("boom")
}

func TestPipelinePanicMarksJobFailed(t *testing.T) {
	store := &recordingStore{}
	sched := New(1, panickingRunner{}, store)

	sched.Submit("job-a")
	sched.Wait()

	msg, ok := store.failedMessage("job-a")
	if !ok {
		t.Fatal("panicking pipeline did not produce a terminal failed write")
	}
	if !strings.Contains(msg, "pipeline panic") || !strings.Contains(msg, "boom") {
		t.Errorf("failed message = %q, want panic details", msg)
	}

	// The slot must be released despite the panic
	st := sched.QueueStatus()
	if st.RunningCount != 0 {
		t.Errorf("running count after panic = %d, want 0", st.RunningCount)
	}
}

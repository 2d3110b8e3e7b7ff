package queue

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/grader/internal/core/domain"
)

func textRequest(requestID string) domain.EvaluationRequest {
	return domain.EvaluationRequest{
		RequestID: requestID,
		Text:      "the answer",
	}
}

// claim claims the next job with a deadline so a broken queue fails the
// test instead of hanging it.
func claim(t *testing.T, q *Queue) *domain.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	return job
}

func TestEnqueueAndClaim(t *testing.T) {
	q := New(Config{})

	job := q.Enqueue(textRequest("req-1"))
	if job.State != domain.JobQueued {
		t.Fatalf("enqueued job state = %v, want queued", job.State)
	}
	if job.AttemptsMade != 0 {
		t.Fatalf("enqueued job attempts = %d, want 0", job.AttemptsMade)
	}

	claimed := claim(t, q)
	if claimed.ID != job.ID {
		t.Errorf("claimed job ID = %s, want %s", claimed.ID, job.ID)
	}
	if claimed.State != domain.JobActive {
		t.Errorf("claimed job state = %v, want active", claimed.State)
	}
	if claimed.AttemptsMade != 1 {
		t.Errorf("claimed job attempts = %d, want 1", claimed.AttemptsMade)
	}
}

func TestEnqueueDeduplicatesLiveRequests(t *testing.T) {
	q := New(Config{})

	first := q.Enqueue(textRequest("req-1"))
	second := q.Enqueue(textRequest("req-1"))
	if second.ID != first.ID {
		t.Errorf("duplicate enqueue created new job %s, want %s", second.ID, first.ID)
	}

	// A different request gets its own job.
	other := q.Enqueue(textRequest("req-2"))
	if other.ID == first.ID {
		t.Error("distinct request shares a job with req-1")
	}
}

func TestEnqueueAfterTerminalCreatesFreshJob(t *testing.T) {
	q := New(Config{MaxAttempts: 1})

	first := q.Enqueue(textRequest("req-1"))
	claimed := claim(t, q)
	q.Fail(claimed.ID, "model rejected input", false)

	second := q.Enqueue(textRequest("req-1"))
	if second.ID == first.ID {
		t.Error("enqueue after terminal failure reused the failed job")
	}
	if second.State != domain.JobQueued {
		t.Errorf("fresh job state = %v, want queued", second.State)
	}

	// The failed job stays visible in retention.
	if old, ok := q.Get(first.ID); !ok || old.State != domain.JobFailed {
		t.Errorf("retained job = %+v (found=%v), want failed", old, ok)
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	q := New(Config{})

	job := q.Enqueue(textRequest("req-1"))
	claimed := claim(t, q)

	result := &domain.EvaluationResult{RequestID: "req-1", JobID: job.ID, Score: 87, Feedback: "good"}
	q.Complete(claimed.ID, result)

	got, ok := q.Get(job.ID)
	if !ok {
		t.Fatal("completed job not found")
	}
	if got.State != domain.JobCompleted {
		t.Errorf("state = %v, want completed", got.State)
	}
	if got.Result == nil || got.Result.Score != 87 {
		t.Errorf("result = %+v, want score 87", got.Result)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set on completion")
	}

	select {
	case <-q.Wait(job.ID):
	default:
		t.Error("completion future not closed after Complete")
	}

	// Terminal jobs do not transition again.
	q.Fail(job.ID, "late failure", true)
	got, _ = q.Get(job.ID)
	if got.State != domain.JobCompleted {
		t.Errorf("state after late Fail = %v, want completed", got.State)
	}
}

func TestRetryableFailureRequeuesWithBackoff(t *testing.T) {
	q := New(Config{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond})

	job := q.Enqueue(textRequest("req-1"))
	first := claim(t, q)
	q.Fail(first.ID, "service unavailable", true)

	got, _ := q.Get(job.ID)
	if got.State != domain.JobQueued {
		t.Fatalf("state after retryable failure = %v, want queued", got.State)
	}

	start := time.Now()
	second := claim(t, q)
	if second.ID != job.ID {
		t.Fatalf("reclaimed job = %s, want %s", second.ID, job.ID)
	}
	if second.AttemptsMade != 2 {
		t.Errorf("attempts after requeue = %d, want 2", second.AttemptsMade)
	}
	if waited := time.Since(start); waited < 15*time.Millisecond {
		t.Errorf("job reclaimable after %v, want backoff of ~20ms", waited)
	}
}

func TestAttemptBudgetExhaustion(t *testing.T) {
	q := New(Config{MaxAttempts: 2, BaseDelay: time.Millisecond})

	job := q.Enqueue(textRequest("req-1"))
	for i := 0; i < 2; i++ {
		claimed := claim(t, q)
		q.Fail(claimed.ID, "service unavailable", true)
	}

	got, ok := q.Get(job.ID)
	if !ok {
		t.Fatal("failed job not found")
	}
	if got.State != domain.JobFailed {
		t.Fatalf("state after exhausting attempts = %v, want failed", got.State)
	}
	if got.AttemptsMade != 2 {
		t.Errorf("attempts = %d, want 2", got.AttemptsMade)
	}
	if got.FailedReason != "service unavailable" {
		t.Errorf("FailedReason = %q, want last failure reason", got.FailedReason)
	}

	select {
	case <-q.Wait(job.ID):
	default:
		t.Error("completion future not closed after terminal failure")
	}
}

func TestNonRetryableFailureIsTerminal(t *testing.T) {
	q := New(Config{MaxAttempts: 3})

	job := q.Enqueue(textRequest("req-1"))
	claimed := claim(t, q)
	q.Fail(claimed.ID, "model rejected input", false)

	got, _ := q.Get(job.ID)
	if got.State != domain.JobFailed {
		t.Errorf("state = %v, want failed on first non-retryable error", got.State)
	}
	if got.AttemptsMade != 1 {
		t.Errorf("attempts = %d, want 1", got.AttemptsMade)
	}
}

func TestDiscardRemovesJob(t *testing.T) {
	q := New(Config{})

	job := q.Enqueue(textRequest("req-1"))
	q.Discard(job.ID)

	if _, ok := q.Get(job.ID); ok {
		t.Error("discarded job still retrievable")
	}
	if _, ok := q.FindByRequestID("req-1"); ok {
		t.Error("discarded job still indexed by request ID")
	}

	select {
	case <-q.Wait(job.ID):
	default:
		t.Error("waiters not released on discard")
	}

	// The request ID is free for a fresh job.
	fresh := q.Enqueue(textRequest("req-1"))
	if fresh.ID == job.ID {
		t.Error("fresh enqueue reused discarded job ID")
	}
}

func TestCompletedRetentionEvictsOldest(t *testing.T) {
	q := New(Config{CompletedRetention: 2})

	var ids []string
	for _, reqID := range []string{"req-1", "req-2", "req-3"} {
		job := q.Enqueue(textRequest(reqID))
		claimed := claim(t, q)
		q.Complete(claimed.ID, &domain.EvaluationResult{RequestID: reqID, JobID: job.ID, Score: 50, Feedback: "ok"})
		ids = append(ids, job.ID)
	}

	if _, ok := q.Get(ids[0]); ok {
		t.Error("oldest completed job survived past retention cap")
	}
	for _, id := range ids[1:] {
		if _, ok := q.Get(id); !ok {
			t.Errorf("job %s evicted while within retention cap", id)
		}
	}
}

func TestWaitUnknownJobIsClosed(t *testing.T) {
	q := New(Config{})

	select {
	case <-q.Wait("no-such-job"):
	case <-time.After(time.Second):
		t.Error("Wait on unknown job did not return a closed channel")
	}
}

func TestClaimBlocksUntilContextDone(t *testing.T) {
	q := New(Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := q.Claim(ctx); err != context.DeadlineExceeded {
		t.Errorf("Claim() on empty queue = %v, want context.DeadlineExceeded", err)
	}
}

func TestDepth(t *testing.T) {
	q := New(Config{})

	q.Enqueue(textRequest("req-1"))
	q.Enqueue(textRequest("req-2"))
	claim(t, q)

	queued, active := q.Depth()
	if queued != 1 || active != 1 {
		t.Errorf("Depth() = (%d, %d), want (1, 1)", queued, active)
	}
}

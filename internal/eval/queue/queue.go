package queue

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/grader/internal/core/domain"
)

// Config holds queue behavior settings.
type Config struct {
	MaxAttempts        int           // total attempts per job, default 3
	BaseDelay          time.Duration // retry backoff base, default 1s (exponential)
	CompletedRetention int           // completed jobs kept for introspection, default 100
	FailedRetention    int           // failed jobs kept for introspection, default 1000
}

// DefaultConfig provides the standard queue settings.
var DefaultConfig = Config{
	MaxAttempts:        3,
	BaseDelay:          1 * time.Second,
	CompletedRetention: 100,
	FailedRetention:    1000,
}

// entry is a claimable queue position. A job returning from a failed
// attempt carries a notBefore in the future.
type entry struct {
	jobID     string
	notBefore time.Time
}

// Queue is an in-process, ordered job queue with an attempt budget,
// exponential retry backoff, bounded retention of terminal jobs, and a
// per-job completion future for the hybrid wait. Jobs are deduplicated
// by request ID while non-terminal: concurrent submissions of the same
// request observe the same job.
type Queue struct {
	cfg Config

	mu        sync.Mutex
	jobs      map[string]*domain.Job
	byRequest map[string]string // requestID -> live jobID
	pending   []entry           // FIFO admission order
	done      map[string]chan struct{}
	completed []string // retention ring, oldest first
	failed    []string

	ready  chan struct{} // claim wakeup, capacity 1
	closed bool
}

// New creates a queue, filling zero config fields from defaults.
func New(cfg Config) *Queue {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultConfig.BaseDelay
	}
	if cfg.CompletedRetention == 0 {
		cfg.CompletedRetention = DefaultConfig.CompletedRetention
	}
	if cfg.FailedRetention == 0 {
		cfg.FailedRetention = DefaultConfig.FailedRetention
	}
	return &Queue{
		cfg:       cfg,
		jobs:      make(map[string]*domain.Job),
		byRequest: make(map[string]string),
		done:      make(map[string]chan struct{}),
		ready:     make(chan struct{}, 1),
	}
}

// Enqueue admits a job for the request. If a non-terminal job already
// exists for the same request ID it is returned instead of creating a
// duplicate; a terminal job is left in retention and a fresh job is
// created (the worker's ledger guard makes re-runs safe).
func (q *Queue) Enqueue(req domain.EvaluationRequest) *domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if jobID, ok := q.byRequest[req.RequestID]; ok {
		if job, ok := q.jobs[jobID]; ok && !job.State.Terminal() {
			return copyJob(job)
		}
	}

	job := &domain.Job{
		ID:         uuid.New().String(),
		Request:    req,
		State:      domain.JobQueued,
		EnqueuedAt: time.Now().UTC(),
	}
	q.jobs[job.ID] = job
	q.byRequest[req.RequestID] = job.ID
	q.done[job.ID] = make(chan struct{})
	q.pending = append(q.pending, entry{jobID: job.ID, notBefore: time.Time{}})
	q.signal()

	return copyJob(job)
}

// Claim blocks until a job is claimable or ctx is done, promoting the
// job to Active and charging one attempt.
func (q *Queue) Claim(ctx context.Context) (*domain.Job, error) {
	for {
		q.mu.Lock()
		now := time.Now()
		var nextWake time.Duration

		for i, e := range q.pending {
			if e.notBefore.After(now) {
				wait := e.notBefore.Sub(now)
				if nextWake == 0 || wait < nextWake {
					nextWake = wait
				}
				continue
			}
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			job := q.jobs[e.jobID]
			job.State = domain.JobActive
			job.AttemptsMade++
			q.mu.Unlock()
			return copyJob(job), nil
		}
		q.mu.Unlock()

		if nextWake == 0 {
			nextWake = time.Duration(math.MaxInt64) // sleep until signaled
		}
		timer := time.NewTimer(nextWake)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.ready:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Complete moves an active job to its terminal success state, retaining
// the result value for introspection.
func (q *Queue) Complete(jobID string, result *domain.EvaluationResult) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok || job.State.Terminal() {
		return
	}
	now := time.Now().UTC()
	job.State = domain.JobCompleted
	job.Result = result
	job.FailedReason = ""
	job.FinishedAt = &now
	q.completed = append(q.completed, jobID)
	q.pruneLocked(&q.completed, q.cfg.CompletedRetention)
	q.finishLocked(jobID)
}

// Fail records a failed attempt. A retryable failure with budget left
// returns the job to Queued after an exponential backoff delay;
// otherwise the job moves to Failed terminally with the reason recorded.
func (q *Queue) Fail(jobID string, reason string, retryable bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok || job.State.Terminal() {
		return
	}

	if retryable && job.AttemptsMade < q.cfg.MaxAttempts {
		job.State = domain.JobQueued
		job.FailedReason = reason
		delay := q.backoff(job.AttemptsMade)
		q.pending = append(q.pending, entry{jobID: jobID, notBefore: time.Now().Add(delay)})
		q.signal()
		return
	}

	now := time.Now().UTC()
	job.State = domain.JobFailed
	job.FailedReason = reason
	job.FinishedAt = &now
	q.failed = append(q.failed, jobID)
	q.pruneLocked(&q.failed, q.cfg.FailedRetention)
	q.finishLocked(jobID)
}

// Discard drops a job entirely (used to replace a job carrying a stale
// failure before a fresh enqueue of the same request).
func (q *Queue) Discard(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return
	}
	for i, e := range q.pending {
		if e.jobID == jobID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	if q.byRequest[job.Request.RequestID] == jobID {
		delete(q.byRequest, job.Request.RequestID)
	}
	if ch, ok := q.done[jobID]; ok {
		select {
		case <-ch:
		default:
			close(ch)
		}
		delete(q.done, jobID)
	}
	delete(q.jobs, jobID)
	removeID(&q.completed, jobID)
	removeID(&q.failed, jobID)
}

// Get returns a snapshot of a job (including retained terminal jobs).
func (q *Queue) Get(jobID string) (*domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	return copyJob(job), true
}

// FindByRequestID returns the job currently associated with a request.
func (q *Queue) FindByRequestID(requestID string) (*domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobID, ok := q.byRequest[requestID]
	if !ok {
		return nil, false
	}
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	return copyJob(job), true
}

// Wait returns a channel closed when the job reaches a terminal state.
// The channel is the job's completion future: callers race it against a
// timer for the hybrid sync path. Waiting on an unknown job yields an
// already-closed channel.
func (q *Queue) Wait(jobID string) <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ch, ok := q.done[jobID]; ok {
		return ch
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Depth returns the number of queued and active jobs.
func (q *Queue) Depth() (queued, active int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs {
		switch job.State {
		case domain.JobQueued:
			queued++
		case domain.JobActive:
			active++
		}
	}
	return queued, active
}

// backoff computes the delay before re-admitting a job after the given
// number of attempts: BaseDelay * 2^(attempts-1).
func (q *Queue) backoff(attempts int) time.Duration {
	d := float64(q.cfg.BaseDelay) * math.Pow(2, float64(attempts-1))
	const maxDelay = float64(5 * time.Minute)
	if d > maxDelay {
		d = maxDelay
	}
	return time.Duration(d)
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// finishLocked closes the job's completion future.
func (q *Queue) finishLocked(jobID string) {
	if ch, ok := q.done[jobID]; ok {
		close(ch)
		delete(q.done, jobID)
	}
}

// pruneLocked evicts the oldest terminal jobs beyond the retention cap.
func (q *Queue) pruneLocked(ring *[]string, keep int) {
	for len(*ring) > keep {
		oldest := (*ring)[0]
		*ring = (*ring)[1:]
		if job, ok := q.jobs[oldest]; ok {
			if q.byRequest[job.Request.RequestID] == oldest {
				delete(q.byRequest, job.Request.RequestID)
			}
			delete(q.jobs, oldest)
		}
	}
}

func removeID(ring *[]string, jobID string) {
	for i, id := range *ring {
		if id == jobID {
			*ring = append((*ring)[:i], (*ring)[i+1:]...)
			return
		}
	}
}

func copyJob(job *domain.Job) *domain.Job {
	cp := *job
	if job.Result != nil {
		res := *job.Result
		cp.Result = &res
	}
	return &cp
}

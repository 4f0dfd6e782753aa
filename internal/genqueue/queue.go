package genqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scenegen/internal/logging"
	"scenegen/internal/metrics"
	"scenegen/internal/services"
	"scenegen/internal/services/genbackend"
)

const cancelRequestTimeout = 15 * time.Second

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logging.NewComponentLogger(logger, "genqueue")
		}
	}
}

// WithMetrics records submissions, outcomes, and depth on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

type job struct {
	status JobStatus
	req    Request
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Queue is a single-flight (or N-slot) generation job queue.
type Queue struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	slots chan struct{}

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Queue over backend.
func New(backend Backend, cfg Config, opts ...Option) *Queue {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		backend: backend,
		cfg:     cfg,
		logger:  logging.NewNop(),
		now:     time.Now,
		slots:   make(chan struct{}, cfg.Concurrency),
		jobs:    make(map[string]*job),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit enqueues req and returns its local job ID.
func (q *Queue) Submit(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.OutputPath) == "" {
		return "", services.Wrap(services.ErrValidation, "genqueue", "submit", "output path is required", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", services.Wrap(services.ErrCanceled, "genqueue", "submit", "context done", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", services.Wrap(services.ErrCanceled, "genqueue", "submit", "queue closed", nil)
	}
	q.pruneLocked()
	id := uuid.NewString()
	jobCtx, cancel := context.WithCancel(q.ctx)
	j := &job{
		status: JobStatus{
			ID:          id,
			State:       StateQueued,
			OutputPath:  req.OutputPath,
			SubmittedAt: q.now(),
		},
		req:    req,
		ctx:    jobCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	q.jobs[id] = j
	q.wg.Add(1)
	depth := q.depthLocked()
	q.mu.Unlock()

	q.metrics.IncJobsSubmitted()
	q.metrics.SetQueueDepth(depth)

	logger := logging.WithContext(services.WithJobID(ctx, id), q.logger)
	logger.Info("generation job queued",
		logging.Int("steps", req.Steps),
		logging.Int64("seed", req.Seed),
		logging.Int("queue_depth", depth),
	)

	go q.run(services.WithJobID(ctx, id), j)
	return id, nil
}

// Poll returns the current status of a job without blocking.
func (q *Queue) Poll(jobID string) (JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return JobStatus{}, services.Wrap(services.ErrNotFound, "genqueue", "poll", fmt.Sprintf("job %s", jobID), nil)
	}
	return j.status, nil
}

// Wait blocks until the job is terminal or ctx is done. Abandoning the wait
// leaves the job running.
func (q *Queue) Wait(ctx context.Context, jobID string) (JobStatus, error) {
	q.mu.Lock()
	j, ok := q.jobs[jobID]
	q.mu.Unlock()
	if !ok {
		return JobStatus{}, services.Wrap(services.ErrNotFound, "genqueue", "wait", fmt.Sprintf("job %s", jobID), nil)
	}
	select {
	case <-j.done:
		return q.snapshot(j), nil
	case <-ctx.Done():
		return q.snapshot(j), services.Wrap(services.ErrCanceled, "genqueue", "wait", "wait abandoned", ctx.Err())
	}
}

// Cancel removes a queued job or cancels a running one on the backend.
// Canceling a finished job is a no-op.
func (q *Queue) Cancel(jobID string) error {
	q.mu.Lock()
	j, ok := q.jobs[jobID]
	if ok && !j.status.State.IsTerminal() {
		j.status.Canceled = true
	}
	q.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNotFound, "genqueue", "cancel", fmt.Sprintf("job %s", jobID), nil)
	}
	j.cancel()
	return nil
}

// Jobs returns snapshots of every retained job.
func (q *Queue) Jobs() []JobStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]JobStatus, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.status)
	}
	return out
}

// Depth returns the number of jobs waiting for a slot.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

// Close stops all job goroutines and waits for them to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) run(logCtx context.Context, j *job) {
	defer q.wg.Done()
	defer j.cancel()
	logger := logging.WithContext(logCtx, q.logger)

	select {
	case q.slots <- struct{}{}:
	case <-j.ctx.Done():
		q.finish(j, StateFailed, "canceled before start", false)
		logger.Info("generation job canceled while queued")
		return
	}
	defer func() { <-q.slots }()

	q.update(j, func(s *JobStatus) {
		s.State = StateRunning
		s.StartedAt = q.now()
	})
	q.metrics.SetQueueDepth(q.Depth())

	backendID, err := q.backend.Submit(j.ctx, j.req.Request)
	if err != nil {
		q.finish(j, StateFailed, services.FailureMessage(err), false)
		logging.WarnWithContext(logger, "generation backend rejected job", "job_submit_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check backend reachability and credentials"),
			logging.String(logging.FieldImpact, "attempt counts as a hard failure"),
		)
		return
	}
	q.update(j, func(s *JobStatus) { s.BackendID = backendID })
	logger = logger.With(logging.String("backend_job_id", backendID))
	logger.Info("generation job submitted to backend")

	q.pollUntilDone(j, backendID, logger)
}

func (q *Queue) pollUntilDone(j *job, backendID string, logger *slog.Logger) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(q.cfg.JobTimeout)
	defer deadline.Stop()
	sampler := logging.NewProgressSampler(10)

	for {
		select {
		case <-j.ctx.Done():
			q.cancelBackend(j, backendID, logger, "job canceled")
			q.finish(j, StateFailed, "canceled", false)
			return
		case <-deadline.C:
			msg := fmt.Sprintf("job exceeded timeout of %s", q.cfg.JobTimeout)
			logging.WarnWithContext(logger, "generation job timed out", "job_timeout",
				logging.Duration("timeout", q.cfg.JobTimeout),
				logging.Bool("cancel_on_timeout", q.cfg.CancelOnTimeout),
				logging.String(logging.FieldErrorHint, "raise backend.job_timeout_seconds or check backend load"),
				logging.String(logging.FieldImpact, "attempt counts as a hard failure"),
			)
			if q.cfg.CancelOnTimeout {
				q.cancelBackend(j, backendID, logger, "timeout")
			}
			q.finish(j, StateFailed, msg, true)
			return
		case <-ticker.C:
		}

		status, err := q.backend.Poll(j.ctx, backendID)
		if err != nil {
			if j.ctx.Err() != nil {
				continue
			}
			if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrConfiguration) {
				q.finish(j, StateFailed, services.FailureMessage(err), false)
				return
			}
			logger.Debug("backend poll failed; retrying", logging.Error(err))
			continue
		}

		q.update(j, func(s *JobStatus) {
			s.Progress = status.Progress
			s.OutputRef = status.OutputRef
		})
		if sampler.Observe(string(status.State), status.Progress) {
			logger.Info("generation progress",
				logging.String("backend_state", string(status.State)),
				logging.Float64("progress_percent", status.Progress),
			)
		}
		if !status.State.IsTerminal() {
			continue
		}
		if status.State != genbackend.StateCompleted {
			msg := status.Error
			if msg == "" {
				msg = fmt.Sprintf("backend reported %s", status.State)
			}
			q.finish(j, StateFailed, msg, false)
			return
		}
		if err := q.backend.Download(j.ctx, status.OutputRef, j.req.OutputPath); err != nil {
			q.finish(j, StateFailed, services.FailureMessage(err), false)
			logging.WarnWithContext(logger, "generation output download failed", "job_download_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "attempt counts as a hard failure"),
			)
			return
		}
		q.update(j, func(s *JobStatus) { s.Progress = 100 })
		q.finish(j, StateCompleted, "", false)
		logger.Info("generation job completed", logging.String("output_path", j.req.OutputPath))
		return
	}
}

func (q *Queue) cancelBackend(j *job, backendID string, logger *slog.Logger, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), cancelRequestTimeout)
	defer cancel()
	if err := q.backend.Cancel(ctx, backendID); err != nil {
		logging.WarnWithContext(logger, "backend cancel failed", "job_cancel_failed",
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the backend may still be rendering this job"),
			logging.String(logging.FieldImpact, "backend capacity may be held until the job finishes"),
		)
		return
	}
	logger.Info("backend job canceled", logging.String("reason", reason))
}

func (q *Queue) finish(j *job, state State, message string, timedOut bool) {
	var canceled bool
	q.update(j, func(s *JobStatus) {
		s.State = state
		s.Error = message
		s.TimedOut = timedOut
		s.FinishedAt = q.now()
		canceled = s.Canceled
	})
	outcome := string(state)
	switch {
	case timedOut:
		outcome = "timeout"
	case canceled:
		outcome = "canceled"
	}
	q.metrics.ObserveJobOutcome(outcome)
	q.metrics.SetQueueDepth(q.Depth())
	close(j.done)
}

func (q *Queue) update(j *job, fn func(*JobStatus)) {
	q.mu.Lock()
	fn(&j.status)
	q.mu.Unlock()
}

func (q *Queue) snapshot(j *job) JobStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return j.status
}

func (q *Queue) depthLocked() int {
	depth := 0
	for _, j := range q.jobs {
		if j.status.State == StateQueued {
			depth++
		}
	}
	return depth
}

func (q *Queue) pruneLocked() {
	cutoff := q.now().Add(-q.cfg.Retention)
	for id, j := range q.jobs {
		if j.status.State.IsTerminal() && j.status.FinishedAt.Before(cutoff) {
			delete(q.jobs, id)
		}
	}
}

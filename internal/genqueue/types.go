package genqueue

import (
	"context"
	"time"

	"scenegen/internal/services/genbackend"
)

// State is the local lifecycle of a queued job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// IsTerminal reports whether the job has finished.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Request is a generation job plus the local path its output is downloaded to.
type Request struct {
	genbackend.Request
	OutputPath string
}

// JobStatus is a point-in-time view of a job.
type JobStatus struct {
	ID          string
	BackendID   string
	State       State
	Progress    float64
	OutputRef   string
	OutputPath  string
	Error       string
	TimedOut    bool
	Canceled    bool
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Backend is the generation service the queue drives.
type Backend interface {
	Submit(ctx context.Context, req genbackend.Request) (string, error)
	Poll(ctx context.Context, jobID string) (genbackend.Status, error)
	Cancel(ctx context.Context, jobID string) error
	Download(ctx context.Context, ref, dest string) error
}

// Config tunes slot count, polling, and timeouts.
type Config struct {
	Concurrency     int
	PollInterval    time.Duration
	JobTimeout      time.Duration
	CancelOnTimeout bool
	// Retention bounds how long finished jobs stay visible to Poll.
	Retention time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 10 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = time.Hour
	}
	return c
}

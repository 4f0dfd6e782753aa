package genbackend

import "strings"

// State is the backend-reported lifecycle of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// IsTerminal reports whether the job will not change state again.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// normalizeState maps backend spellings onto State values.
func normalizeState(raw string) State {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending", "in_queue", "waiting":
		return StateQueued
	case "running", "processing", "in_progress", "executing":
		return StateRunning
	case "completed", "complete", "succeeded", "success", "done":
		return StateCompleted
	case "canceled", "cancelled":
		return StateCanceled
	case "failed", "error", "timed_out":
		return StateFailed
	default:
		return StateQueued
	}
}

// Request is one generation job.
type Request struct {
	Prompt          string
	FirstFrame      string
	Seed            int64
	Steps           int
	Width           int
	Height          int
	FPS             int
	DurationSeconds float64
}

// Status is a poll result.
type Status struct {
	State     State
	Progress  float64
	OutputRef string
	Error     string
}

type submitPayload struct {
	Prompt          string  `json:"prompt"`
	Image           string  `json:"image"`
	ImageMIME       string  `json:"image_mime"`
	Seed            int64   `json:"seed"`
	Steps           int     `json:"steps"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	FPS             int     `json:"fps,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
	ID    string `json:"id"`
}

type statusResponse struct {
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	OutputRef string  `json:"output_ref"`
	OutputURL string  `json:"output_url"`
	Error     string  `json:"error"`
}

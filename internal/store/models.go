package store

import (
	"errors"
	"time"
)

// SceneStatus represents the lifecycle of a scene.
type SceneStatus string

const (
	ScenePending    SceneStatus = "pending"
	SceneGenerating SceneStatus = "generating"
	SceneAssembling SceneStatus = "assembling"
	SceneCompleted  SceneStatus = "completed"
	SceneFailed     SceneStatus = "failed"
)

// ShotStatus represents the lifecycle of a single shot.
type ShotStatus string

const (
	ShotPending    ShotStatus = "pending"
	ShotGenerating ShotStatus = "generating"
	ShotScored     ShotStatus = "scored"
	ShotCompleted  ShotStatus = "completed"
	ShotFailed     ShotStatus = "failed"
)

// InterruptedReason is recorded on scenes reclaimed after a daemon crash.
const InterruptedReason = "interrupted by daemon restart"

var (
	// ErrNotFound is returned when a scene or shot does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned when a status change would move a scene backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStatusMismatch is returned by compare-and-set transitions when the
	// current status is not one of the expected values.
	ErrStatusMismatch = errors.New("status mismatch")
)

var sceneTransitions = map[SceneStatus][]SceneStatus{
	ScenePending:    {SceneGenerating, SceneAssembling, SceneFailed},
	SceneGenerating: {SceneAssembling, SceneFailed},
	SceneAssembling: {SceneCompleted, SceneFailed},
	// Completed and failed scenes only move again through explicit manual
	// actions: a shot retry resets them to pending, a restart resumes a failed
	// scene, and a re-assembly rebuilds a completed one.
	SceneCompleted: {ScenePending, SceneAssembling},
	SceneFailed:    {ScenePending, SceneGenerating, SceneAssembling},
}

// CanTransition reports whether a scene may move from one status to another.
func CanTransition(from, to SceneStatus) bool {
	for _, allowed := range sceneTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsActive reports whether the scene is being worked on by a background task.
func (s SceneStatus) IsActive() bool {
	return s == SceneGenerating || s == SceneAssembling
}

// IsTerminal reports whether the shot reached a terminal per-shot state.
func (s ShotStatus) IsTerminal() bool {
	return s == ShotCompleted || s == ShotFailed
}

// Scene is a production unit composed of an ordered sequence of shots.
type Scene struct {
	ID             int64
	Name           string
	Status         SceneStatus
	Mood           string
	MusicPath      string
	TargetDuration float64
	VideoPath      string
	VideoDuration  float64
	AssemblyState  string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Shot is one generated video segment within a scene.
type Shot struct {
	ID                 int64
	SceneID            int64
	Number             int
	Prompt             string
	Duration           float64
	Characters         []string
	SourceImage        string
	FirstFrame         string
	LastFrame          string
	VideoPath          string
	Status             ShotStatus
	Score              float64
	HasScore           bool
	Attempts           int
	Seed               int64
	Steps              int
	DialogueText       string
	DialogueAudio      string
	Transition         string
	TransitionDuration float64
	ErrorMessage       string
	UpdatedAt          time.Time
}

// Attempt records one generation try for diagnostics.
type Attempt struct {
	ID          int64
	ShotID      int64
	Number      int
	Seed        int64
	Steps       int
	JobID       string
	Score       float64
	Threshold   float64
	Passed      bool
	HardFailure bool
	Error       string
	VideoPath   string
	CreatedAt   time.Time
}

// NewScene describes a scene and its ordered shots at creation time.
type NewScene struct {
	Name           string
	Mood           string
	MusicPath      string
	TargetDuration float64
	Shots          []NewShot
}

// NewShot describes one shot at scene creation time. Shots are numbered in
// slice order starting at 1.
type NewShot struct {
	Prompt             string
	Duration           float64
	Characters         []string
	SourceImage        string
	DialogueText       string
	DialogueAudio      string
	Transition         string
	TransitionDuration float64
}

// Snapshot is a consistent read of a scene and its shots.
type Snapshot struct {
	Scene Scene
	Shots []Shot
}

// BestScores returns the recorded score per shot in shot order. Shots without
// a score report nil.
func (s Snapshot) BestScores() []*float64 {
	scores := make([]*float64, len(s.Shots))
	for i, shot := range s.Shots {
		if shot.HasScore {
			value := shot.Score
			scores[i] = &value
		}
	}
	return scores
}

// FirstIncomplete returns the index of the first shot that is not completed,
// or -1 when every shot is completed.
func (s Snapshot) FirstIncomplete() int {
	for i, shot := range s.Shots {
		if shot.Status != ShotCompleted {
			return i
		}
	}
	return -1
}

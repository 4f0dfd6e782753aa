package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Scene describes a scene in a transport-friendly format.
type Scene struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	Mood           string  `json:"mood,omitempty"`
	MusicPath      string  `json:"musicPath,omitempty"`
	TargetDuration float64 `json:"targetDuration"`
	VideoPath      string  `json:"videoPath,omitempty"`
	VideoDuration  float64 `json:"videoDuration,omitempty"`
	AssemblyState  string  `json:"assemblyState,omitempty"`
	ErrorMessage   string  `json:"errorMessage,omitempty"`
	CreatedAt      string  `json:"createdAt,omitempty"`
	UpdatedAt      string  `json:"updatedAt,omitempty"`
}

// Shot describes one shot of a scene.
type Shot struct {
	ID                 int64    `json:"id"`
	Number             int      `json:"number"`
	Prompt             string   `json:"prompt"`
	Duration           float64  `json:"duration"`
	Characters         []string `json:"characters,omitempty"`
	Status             string   `json:"status"`
	Score              *float64 `json:"score"`
	Attempts           int      `json:"attempts"`
	Seed               int64    `json:"seed,omitempty"`
	Steps              int      `json:"steps,omitempty"`
	SourceImage        string   `json:"sourceImage,omitempty"`
	FirstFrame         string   `json:"firstFrame,omitempty"`
	LastFrame          string   `json:"lastFrame,omitempty"`
	VideoPath          string   `json:"videoPath,omitempty"`
	Dialogue           string   `json:"dialogue,omitempty"`
	Transition         string   `json:"transition,omitempty"`
	TransitionDuration float64  `json:"transitionDuration,omitempty"`
	ErrorMessage       string   `json:"errorMessage,omitempty"`
	UpdatedAt          string   `json:"updatedAt,omitempty"`
}

// Attempt describes one recorded generation try.
type Attempt struct {
	Number      int     `json:"number"`
	Seed        int64   `json:"seed"`
	Steps       int     `json:"steps"`
	JobID       string  `json:"jobId,omitempty"`
	Score       float64 `json:"score"`
	Threshold   float64 `json:"threshold"`
	Passed      bool    `json:"passed"`
	HardFailure bool    `json:"hardFailure"`
	Error       string  `json:"error,omitempty"`
	VideoPath   string  `json:"videoPath,omitempty"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

// SceneProgress counts completed shots.
type SceneProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// SceneStatus is the full read-only view of a scene.
type SceneStatus struct {
	Scene       Scene         `json:"scene"`
	Shots       []Shot        `json:"shots"`
	BestScores  []*float64    `json:"bestScores"`
	Progress    SceneProgress `json:"progress"`
	Running     bool          `json:"running"`
	RunID       string        `json:"runId,omitempty"`
	RunKind     string        `json:"runKind,omitempty"`
	ActiveJobID string        `json:"activeJobId,omitempty"`
}

// StartSceneResponse acknowledges a scene generation start.
type StartSceneResponse struct {
	SceneID          int64   `json:"sceneId"`
	RunID            string  `json:"runId"`
	RemainingShots   int     `json:"remainingShots"`
	EstimatedSeconds float64 `json:"estimatedSeconds"`
	TargetDuration   float64 `json:"targetDuration"`
}

// RetryShotResponse acknowledges a manual shot retry.
type RetryShotResponse struct {
	SceneID int64  `json:"sceneId"`
	ShotID  int64  `json:"shotId"`
	JobID   string `json:"jobId"`
	RunID   string `json:"runId,omitempty"`
}

// AssembleResponse reports the assembled scene artifact.
type AssembleResponse struct {
	SceneID   int64    `json:"sceneId"`
	VideoPath string   `json:"videoPath"`
	Duration  float64  `json:"duration"`
	State     string   `json:"state"`
	Reused    bool     `json:"reused"`
	Warnings  []string `json:"warnings,omitempty"`
}

// SceneListResponse wraps a collection of scenes.
type SceneListResponse struct {
	Scenes []Scene `json:"scenes"`
}

// ImportSceneResponse reports a scene created from a manifest.
type ImportSceneResponse struct {
	Scene Scene `json:"scene"`
	Shots int   `json:"shots"`
}

// AttemptListResponse wraps the attempts recorded for a shot.
type AttemptListResponse struct {
	SceneID  int64     `json:"sceneId"`
	ShotID   int64     `json:"shotId"`
	Attempts []Attempt `json:"attempts"`
}

// Job describes a generation job.
type Job struct {
	ID          string  `json:"id"`
	BackendID   string  `json:"backendId,omitempty"`
	State       string  `json:"state"`
	Progress    float64 `json:"progress"`
	OutputPath  string  `json:"outputPath,omitempty"`
	Error       string  `json:"error,omitempty"`
	TimedOut    bool    `json:"timedOut,omitempty"`
	Canceled    bool    `json:"canceled,omitempty"`
	SubmittedAt string  `json:"submittedAt,omitempty"`
	StartedAt   string  `json:"startedAt,omitempty"`
	FinishedAt  string  `json:"finishedAt,omitempty"`
}

// JobListResponse wraps retained generation jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"databasePath"`
	LockFilePath string             `json:"lockFilePath"`
	SocketPath   string             `json:"socketPath"`
	APIBind      string             `json:"apiBind,omitempty"`
	ActiveScenes []int64            `json:"activeScenes"`
	QueueDepth   int                `json:"queueDepth"`
	WorkDirBytes int64              `json:"workDirBytes"`
	SceneStats   map[string]int     `json:"sceneStats"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

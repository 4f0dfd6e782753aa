package ipc

import "scenegen/internal/api"

// Wire types reuse the HTTP DTOs.
type (
	SceneStatus         = api.SceneStatus
	StartSceneResponse  = api.StartSceneResponse
	RetryShotResponse   = api.RetryShotResponse
	AssembleResponse    = api.AssembleResponse
	SceneListResponse   = api.SceneListResponse
	ImportSceneResponse = api.ImportSceneResponse
	AttemptListResponse = api.AttemptListResponse
	Job                 = api.Job
	JobListResponse     = api.JobListResponse
	StatusResponse      = api.DaemonStatus
)

// Empty is used by methods that take no arguments.
type Empty struct{}

// SceneRequest identifies a scene.
type SceneRequest struct {
	SceneID int64 `json:"sceneId"`
}

// ShotRequest identifies one shot within a scene.
type ShotRequest struct {
	SceneID int64 `json:"sceneId"`
	ShotID  int64 `json:"shotId"`
}

// ImportRequest names a manifest on the daemon host.
type ImportRequest struct {
	ManifestPath string `json:"manifestPath"`
}

// SceneListRequest filters scenes by status; empty means all.
type SceneListRequest struct {
	Statuses []string `json:"statuses,omitempty"`
}

// JobRequest identifies a generation job.
type JobRequest struct {
	JobID string `json:"jobId"`
}

// CancelResponse confirms a scene cancellation.
type CancelResponse struct {
	SceneID  int64 `json:"sceneId"`
	Canceled bool  `json:"canceled"`
}

// StartResponse reports whether the daemon services started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopResponse reports daemon shutdown.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// LogTailRequest asks for daemon log lines.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"waitMillis"`
	Match      string `json:"match,omitempty"`
}

// LogTailResponse returns log lines and the offset for the next request.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationResponse reports whether a test notification was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

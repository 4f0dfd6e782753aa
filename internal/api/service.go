package api

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"scenegen/internal/genqueue"
	"scenegen/internal/manifest"
	"scenegen/internal/orchestrator"
	"scenegen/internal/services"
	"scenegen/internal/store"
)

// SceneRunner is the orchestrator surface the facade drives.
type SceneRunner interface {
	StartScene(ctx context.Context, sceneID int64) (orchestrator.Estimate, error)
	SceneStatus(ctx context.Context, sceneID int64) (orchestrator.Status, error)
	RetryShot(ctx context.Context, sceneID, shotID int64) (orchestrator.Retry, error)
	AssembleScene(ctx context.Context, sceneID int64) (orchestrator.AssemblyResult, error)
	CancelScene(sceneID int64) error
}

// SceneStore abstracts the persistence calls the facade needs directly.
type SceneStore interface {
	CreateScene(ctx context.Context, spec store.NewScene) (*store.Scene, error)
	ListScenes(ctx context.Context, statuses ...store.SceneStatus) ([]*store.Scene, error)
	GetShot(ctx context.Context, sceneID, shotID int64) (*store.Shot, error)
	Attempts(ctx context.Context, shotID int64) ([]store.Attempt, error)
	Stats(ctx context.Context) (map[store.SceneStatus]int, error)
}

// JobReader exposes read-only generation job state.
type JobReader interface {
	Poll(jobID string) (genqueue.JobStatus, error)
	Jobs() []genqueue.JobStatus
}

// Service exposes scene operations returning API DTOs. The HTTP server and the
// IPC server both delegate here.
type Service struct {
	runner         SceneRunner
	store          SceneStore
	jobs           JobReader
	defaultOverlap float64
}

// NewService constructs a Service. jobs may be nil when job inspection is not
// available.
func NewService(runner SceneRunner, st SceneStore, jobs JobReader, defaultOverlap float64) *Service {
	return &Service{runner: runner, store: st, jobs: jobs, defaultOverlap: defaultOverlap}
}

// StartScene begins background generation and returns the estimate.
func (s *Service) StartScene(ctx context.Context, sceneID int64) (StartSceneResponse, error) {
	if err := validID("start scene", "scene", sceneID); err != nil {
		return StartSceneResponse{}, err
	}
	estimate, err := s.runner.StartScene(ctx, sceneID)
	if err != nil {
		return StartSceneResponse{}, err
	}
	return FromEstimate(sceneID, estimate), nil
}

// SceneStatus returns the scene with its shots and best scores.
func (s *Service) SceneStatus(ctx context.Context, sceneID int64) (SceneStatus, error) {
	if err := validID("scene status", "scene", sceneID); err != nil {
		return SceneStatus{}, err
	}
	status, err := s.runner.SceneStatus(ctx, sceneID)
	if err != nil {
		return SceneStatus{}, err
	}
	return FromStatus(status), nil
}

// RetryShot regenerates one shot in the background and reports the first
// generation job it submitted.
func (s *Service) RetryShot(ctx context.Context, sceneID, shotID int64) (RetryShotResponse, error) {
	if err := validID("retry shot", "scene", sceneID); err != nil {
		return RetryShotResponse{}, err
	}
	if err := validID("retry shot", "shot", shotID); err != nil {
		return RetryShotResponse{}, err
	}
	retry, err := s.runner.RetryShot(ctx, sceneID, shotID)
	if err != nil {
		return RetryShotResponse{}, err
	}
	return RetryShotResponse{SceneID: sceneID, ShotID: shotID, JobID: retry.JobID, RunID: retry.RunID}, nil
}

// AssembleScene builds, or reuses, the scene video.
func (s *Service) AssembleScene(ctx context.Context, sceneID int64) (AssembleResponse, error) {
	if err := validID("assemble scene", "scene", sceneID); err != nil {
		return AssembleResponse{}, err
	}
	result, err := s.runner.AssembleScene(ctx, sceneID)
	if err != nil {
		return AssembleResponse{}, err
	}
	return FromAssembly(sceneID, result), nil
}

// CancelScene stops the scene's active run.
func (s *Service) CancelScene(sceneID int64) error {
	if err := validID("cancel scene", "scene", sceneID); err != nil {
		return err
	}
	return s.runner.CancelScene(sceneID)
}

// ImportScene creates a scene from a YAML manifest on the daemon host.
func (s *Service) ImportScene(ctx context.Context, path string) (ImportSceneResponse, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ImportSceneResponse{}, services.Wrap(services.ErrValidation, "api", "import scene", "manifest path is required", nil)
	}
	if !filepath.IsAbs(path) {
		return ImportSceneResponse{}, services.Wrap(services.ErrValidation, "api", "import scene",
			fmt.Sprintf("manifest path %q must be absolute", path), nil)
	}
	m, err := manifest.Load(path)
	if err != nil {
		return ImportSceneResponse{}, err
	}
	scene, err := s.store.CreateScene(ctx, m.NewScene(s.defaultOverlap))
	if err != nil {
		return ImportSceneResponse{}, storeError("import scene", err)
	}
	return ImportSceneResponse{Scene: FromScene(scene), Shots: len(m.Shots)}, nil
}

// ListScenes returns scenes filtered by status names. Unknown names are rejected.
func (s *Service) ListScenes(ctx context.Context, statuses ...string) (SceneListResponse, error) {
	filter, err := parseStatuses(statuses)
	if err != nil {
		return SceneListResponse{}, err
	}
	scenes, err := s.store.ListScenes(ctx, filter...)
	if err != nil {
		return SceneListResponse{}, storeError("list scenes", err)
	}
	return SceneListResponse{Scenes: FromScenes(scenes)}, nil
}

// ShotAttempts returns every attempt recorded for a shot.
func (s *Service) ShotAttempts(ctx context.Context, sceneID, shotID int64) (AttemptListResponse, error) {
	if _, err := s.store.GetShot(ctx, sceneID, shotID); err != nil {
		return AttemptListResponse{}, storeError("shot attempts", err)
	}
	attempts, err := s.store.Attempts(ctx, shotID)
	if err != nil {
		return AttemptListResponse{}, storeError("shot attempts", err)
	}
	out := AttemptListResponse{SceneID: sceneID, ShotID: shotID, Attempts: make([]Attempt, 0, len(attempts))}
	for _, attempt := range attempts {
		out.Attempts = append(out.Attempts, FromAttempt(attempt))
	}
	return out, nil
}

// SceneStats returns scene counts keyed by status.
func (s *Service) SceneStats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, storeError("scene stats", err)
	}
	return MergeSceneStats(stats), nil
}

// Job returns one generation job.
func (s *Service) Job(jobID string) (Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, services.Wrap(services.ErrValidation, "api", "job status", "job id is required", nil)
	}
	if s.jobs == nil {
		return Job{}, services.Wrap(services.ErrNotFound, "api", "job status", fmt.Sprintf("job %s", jobID), nil)
	}
	job, err := s.jobs.Poll(jobID)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job), nil
}

// Jobs returns every retained generation job.
func (s *Service) Jobs() JobListResponse {
	if s.jobs == nil {
		return JobListResponse{Jobs: []Job{}}
	}
	return JobListResponse{Jobs: FromJobs(s.jobs.Jobs())}
}

func validID(op, kind string, id int64) error {
	if id <= 0 {
		return services.Wrap(services.ErrValidation, "api", op, fmt.Sprintf("invalid %s id %d", kind, id), nil)
	}
	return nil
}

func parseStatuses(values []string) ([]store.SceneStatus, error) {
	var out []store.SceneStatus
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		status := store.SceneStatus(trimmed)
		switch status {
		case store.ScenePending, store.SceneGenerating, store.SceneAssembling, store.SceneCompleted, store.SceneFailed:
			out = append(out, status)
		default:
			return nil, services.Wrap(services.ErrValidation, "api", "list scenes", fmt.Sprintf("unknown status %q", value), nil)
		}
	}
	return out, nil
}

func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return services.Wrap(services.ErrNotFound, "api", op, "", err)
	default:
		return services.Wrap(services.ErrTransient, "api", op, "store access failed", err)
	}
}

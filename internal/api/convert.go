package api

import (
	"sort"
	"time"

	"scenegen/internal/deps"
	"scenegen/internal/genqueue"
	"scenegen/internal/orchestrator"
	"scenegen/internal/store"
)

// FromScene converts a store scene into its API representation.
func FromScene(scene *store.Scene) Scene {
	if scene == nil {
		return Scene{}
	}
	return Scene{
		ID:             scene.ID,
		Name:           scene.Name,
		Status:         string(scene.Status),
		Mood:           scene.Mood,
		MusicPath:      scene.MusicPath,
		TargetDuration: scene.TargetDuration,
		VideoPath:      scene.VideoPath,
		VideoDuration:  scene.VideoDuration,
		AssemblyState:  scene.AssemblyState,
		ErrorMessage:   scene.ErrorMessage,
		CreatedAt:      formatTime(scene.CreatedAt),
		UpdatedAt:      formatTime(scene.UpdatedAt),
	}
}

// FromScenes converts a slice of scenes, skipping nil entries.
func FromScenes(scenes []*store.Scene) []Scene {
	out := make([]Scene, 0, len(scenes))
	for _, scene := range scenes {
		if scene == nil {
			continue
		}
		out = append(out, FromScene(scene))
	}
	return out
}

// FromShot converts a store shot into its API representation.
func FromShot(shot store.Shot) Shot {
	out := Shot{
		ID:                 shot.ID,
		Number:             shot.Number,
		Prompt:             shot.Prompt,
		Duration:           shot.Duration,
		Characters:         shot.Characters,
		Status:             string(shot.Status),
		Attempts:           shot.Attempts,
		Seed:               shot.Seed,
		Steps:              shot.Steps,
		SourceImage:        shot.SourceImage,
		FirstFrame:         shot.FirstFrame,
		LastFrame:          shot.LastFrame,
		VideoPath:          shot.VideoPath,
		Dialogue:           shot.DialogueText,
		Transition:         shot.Transition,
		TransitionDuration: shot.TransitionDuration,
		ErrorMessage:       shot.ErrorMessage,
		UpdatedAt:          formatTime(shot.UpdatedAt),
	}
	if shot.HasScore {
		score := shot.Score
		out.Score = &score
	}
	return out
}

// FromAttempt converts a recorded attempt.
func FromAttempt(attempt store.Attempt) Attempt {
	return Attempt{
		Number:      attempt.Number,
		Seed:        attempt.Seed,
		Steps:       attempt.Steps,
		JobID:       attempt.JobID,
		Score:       attempt.Score,
		Threshold:   attempt.Threshold,
		Passed:      attempt.Passed,
		HardFailure: attempt.HardFailure,
		Error:       attempt.Error,
		VideoPath:   attempt.VideoPath,
		CreatedAt:   formatTime(attempt.CreatedAt),
	}
}

// FromStatus converts an orchestrator status view.
func FromStatus(status orchestrator.Status) SceneStatus {
	out := SceneStatus{
		Scene:       FromScene(&status.Scene),
		Shots:       make([]Shot, 0, len(status.Shots)),
		BestScores:  status.BestScores,
		Running:     status.Running,
		RunID:       status.RunID,
		RunKind:     status.RunKind,
		ActiveJobID: status.ActiveJobID,
	}
	if out.BestScores == nil {
		out.BestScores = []*float64{}
	}
	for _, shot := range status.Shots {
		out.Shots = append(out.Shots, FromShot(shot))
		if shot.Status == store.ShotCompleted {
			out.Progress.Completed++
		}
	}
	out.Progress.Total = len(status.Shots)
	return out
}

// FromEstimate converts a scene start estimate.
func FromEstimate(sceneID int64, estimate orchestrator.Estimate) StartSceneResponse {
	return StartSceneResponse{
		SceneID:          sceneID,
		RunID:            estimate.RunID,
		RemainingShots:   estimate.RemainingShots,
		EstimatedSeconds: estimate.EstimatedDuration.Seconds(),
		TargetDuration:   estimate.TargetDuration,
	}
}

// FromAssembly converts an assembly result.
func FromAssembly(sceneID int64, result orchestrator.AssemblyResult) AssembleResponse {
	return AssembleResponse{
		SceneID:   sceneID,
		VideoPath: result.VideoPath,
		Duration:  result.Duration,
		State:     result.State,
		Reused:    result.Reused,
		Warnings:  result.Warnings,
	}
}

// FromJob converts a generation job snapshot.
func FromJob(job genqueue.JobStatus) Job {
	return Job{
		ID:          job.ID,
		BackendID:   job.BackendID,
		State:       string(job.State),
		Progress:    job.Progress,
		OutputPath:  job.OutputPath,
		Error:       job.Error,
		TimedOut:    job.TimedOut,
		Canceled:    job.Canceled,
		SubmittedAt: formatTime(job.SubmittedAt),
		StartedAt:   formatTime(job.StartedAt),
		FinishedAt:  formatTime(job.FinishedAt),
	}
}

// FromJobs converts job snapshots, newest submission first.
func FromJobs(jobs []genqueue.JobStatus) []Job {
	sorted := append([]genqueue.JobStatus(nil), jobs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SubmittedAt.After(sorted[j].SubmittedAt)
	})
	out := make([]Job, 0, len(sorted))
	for _, job := range sorted {
		out = append(out, FromJob(job))
	}
	return out
}

// FromDependencies converts binary check results.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, DependencyStatus{
			Name:        status.Name,
			Command:     status.Command,
			Description: status.Description,
			Optional:    status.Optional,
			Available:   status.Available,
			Detail:      status.Detail,
		})
	}
	return out
}

// MergeSceneStats returns counts for every scene status, including zeros.
func MergeSceneStats(stats map[store.SceneStatus]int) map[string]int {
	out := map[string]int{
		string(store.ScenePending):    0,
		string(store.SceneGenerating): 0,
		string(store.SceneAssembling): 0,
		string(store.SceneCompleted):  0,
		string(store.SceneFailed):     0,
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

package orchestrator

import (
	"context"
)

// SceneStatus returns a consistent view of a scene. It never writes.
func (m *Manager) SceneStatus(ctx context.Context, sceneID int64) (Status, error) {
	snap, err := m.store.Snapshot(ctx, sceneID)
	if err != nil {
		return Status{}, storeError("status", err)
	}
	status := Status{Snapshot: *snap, BestScores: snap.BestScores()}
	if r := m.activeRun(sceneID); r != nil {
		status.Running = true
		status.RunID = r.id
		status.RunKind = r.kind
		status.ActiveJobID = r.job()
	}
	return status, nil
}

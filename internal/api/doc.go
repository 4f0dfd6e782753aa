// Package api defines wire-format types and the service facade shared by the
// HTTP API and the JSON-RPC IPC server. It translates store rows, orchestrator
// status, and generation jobs into transport-friendly DTOs that the CLI and
// other consumers can render without coupling to internal types.
//
// # Key Types
//
// Service: the facade over the orchestrator, scene store, and job queue. Both
// transports call the same methods, so validation and error classification
// happen once.
//
// SceneStatus: a scene, its ordered shots, best scores, and the active run.
//
// StartSceneResponse/RetryShotResponse/AssembleResponse: results of the three
// mutating scene operations.
//
// Job: a point-in-time view of a generation job.
//
// DaemonStatus: aggregated runtime information including dependencies.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (store.SceneStatus,
// store.ShotStatus, genqueue.State) are exposed as lowercase strings.
// Timestamps use RFC3339 with milliseconds. Shots without a score report a
// null score rather than zero so consumers can tell "unscored" from "bad".
package api

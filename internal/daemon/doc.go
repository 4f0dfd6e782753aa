// Package daemon coordinates the long-running scenegen process.
//
// It wires configuration, the scene store, the orchestrator, and the
// generation job queue into a single lifecycle with flock-based locking to
// prevent multiple instances. On start it runs preflight checks, lets the
// orchestrator reclaim scenes interrupted by a previous process, and serves
// the HTTP API (chi router, bearer auth, Prometheus /metrics).
//
// Keep orchestration logic out of here: scene generation lives in
// orchestrator, shotgen, and assembler while the daemon focuses on startup,
// shutdown, and transport.
package daemon

// Package services defines shared utilities consumed by the scene pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp scene IDs, shot numbers, job IDs, stage names,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures so
//     the orchestrator and API layers can react consistently (retry, degrade,
//     reject, or fail loudly).
//
// Use these helpers when wiring new pipeline code so operational behaviour
// (error handling, observability, retries) stays uniform.
package services

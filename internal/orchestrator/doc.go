// Package orchestrator drives scenes through generation and assembly.
//
// The Manager runs one goroutine per active scene. Shots are generated in
// order through the shot controller, each one starting from the previous
// shot's last frame, and the scene is assembled once every shot completes.
// Progress is persisted in the sqlite store so status reads never depend on
// in-memory state beyond which scenes are running.
//
// Manual operations (shot retry, re-assembly, cancellation) share the same
// run registry, so a scene never has two background tasks at once.
package orchestrator

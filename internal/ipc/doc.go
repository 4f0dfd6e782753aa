// Package ipc exposes the daemon over JSON-RPC on a Unix domain socket and
// ships the matching client used by the CLI.
//
// Every method delegates to the shared api.Service facade, so the socket and
// the HTTP API return the same DTOs. Methods are registered under the
// "Scenegen" service name (Scenegen.SceneStart, Scenegen.SceneStatus, ...).
package ipc

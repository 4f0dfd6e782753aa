// Package main hosts the scenegen CLI.
//
// The cobra command tree turns terminal invocations into IPC calls against
// the daemon: scene import, generation, retries, assembly, and job
// inspection. Daemon lifecycle, configuration scaffolding, and preflight
// checks live here too.
package main

// Package daemonctl manages the daemon process from the CLI: launching it in
// the background, waiting for its socket, stopping it, and building status
// snapshots that still work while the daemon is down.
package daemonctl

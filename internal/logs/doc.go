// Package logs tails the daemon log file for `scenegen daemon logs`.
//
// Reads are offset based so a follower can resume where the previous call
// stopped. A negative offset returns the last N lines.
package logs

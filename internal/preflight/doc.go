// Package preflight provides readiness checks for the external tools,
// services, and filesystem paths scenegen depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll on start and logs every failed check. A failed
//     check does not stop the daemon; scenes fail later with a precise error.
//   - The CLI "scenegen preflight" command renders the same results as a table.
//
// Backend reachability is probed with a single, short health request so an
// offline backend never stalls the caller.
package preflight

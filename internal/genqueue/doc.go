// Package genqueue serializes generation jobs against the backend.
//
// Submit returns a local job ID immediately. Each job waits in FIFO order for
// a slot, submits to the backend, polls until the job is terminal or the
// per-job timeout expires, and downloads the output. Callers observe jobs with
// Poll (a read-only snapshot) or block on Wait. Abandoning a Wait never stops
// the job; Cancel does.
package genqueue

// Package genbackend is the HTTP JSON client for the image-to-video
// generation backend.
//
// The backend is an opaque job service. A job is created with
// POST {url}/jobs carrying the prompt, the base64 first frame, seed, and
// step count; it is polled with GET {url}/jobs/{id}; it is cancelled with
// POST {url}/jobs/{id}/cancel; and its finished video is fetched from the
// output reference the poll reports, which may be absolute or relative to
// the backend URL. Transient HTTP failures (408, 429, 5xx, timeouts) are
// retried with exponential backoff that honours Retry-After.
package genbackend

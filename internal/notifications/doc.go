// Package notifications delivers scene lifecycle events to ntfy.
//
// Callers publish an Event with a Payload. The ntfy implementation renders a
// title, message, tags, and priority per event and drops events disabled in
// the [notifications] config section. Without a topic the service is a no-op.
package notifications

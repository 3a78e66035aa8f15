// Package confirm implements the reaction-gated confirmation workflow
// around external compile requests.
//
// # Session Lifecycle
//
// A message carrying a recognized attachment opens a session:
//
//	armed -> confirmed -> executing -> completed | failed
//	armed -> expired
//
// Arming posts a marker reaction on the triggering message. The session
// then collects reaction events for a fixed window; only the requester
// reacting with the marker emoji confirms. Expiry is silent: the marker
// is stripped and nothing is sent.
//
// # Concurrency
//
// Each session runs on the goroutine that dispatched its message event.
// Sessions share no mutable state; the Coordinator only maps message ids
// to live sessions so OnReaction can route events. The reactions channel
// is buffered and sends are non-blocking, so a flood of reactions cannot
// stall the dispatcher.
//
// # Reply Tracking
//
// Replies (results and failure notices alike) are registered in the
// history cache keyed by the triggering message id. Edits re-execute and
// update the tracked reply in place; deletions remove it.
package confirm

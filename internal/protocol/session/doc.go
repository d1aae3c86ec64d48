// Package session owns radio delivery reliability primitives.
//
// Ownership boundary:
// - retry/backoff helpers
// - pending-delivery outbox (single in-flight)
// - deferred keyed sends with bounded retry (acks, metadata follow-ups)
// - reliability config defaults
package session

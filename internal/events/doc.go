// Package events owns the in-process board event stream.
//
// Ownership boundary:
// - event kinds and payload shapes pushed to web clients
// - fan-out to subscribers (slow subscribers drop, publishers never block)
package events

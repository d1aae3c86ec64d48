// Package board exposes the note board operations used by the web adapter.
//
// Ownership boundary:
// - validating note text against the radio payload budget
// - authorization rules delegated to internal/store
// - reply tree reconstruction for listing
// - immediate resends and deferred /pin propagation
//
// Queued radio delivery belongs to internal/scheduler.
package board

// Package store owns durable board state: notes and ack records in sqlite.
//
// Ownership boundary:
// - schema and migrations
// - per-operation transactions
// - note status guards (LAN only -> Sending -> LoRa sent, Sending -> LAN only)
// - per-board live note cap
//
// Notes are never physically deleted; they are tombstoned.
package store

// Package scheduler drains the local outbound queue onto the radio link.
//
// Ownership boundary:
// - expiring unacknowledged deliveries back to the queue
// - one metadata update (archive or color) or one note per tick
// - single in-flight delivery through link.Session
//
// Delivery acknowledgements are resolved by internal/router.
package scheduler

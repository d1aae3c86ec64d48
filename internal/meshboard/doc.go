// Package meshboard wires the note store, radio link, scheduler, router and
// web adapter into one process lifecycle.
//
// Ownership boundary:
// - configuration defaults and validation
// - driver and power probe selection
// - task group start and ordered shutdown
package meshboard

// Package power probes host power and thermal health before radio connects.
//
// Ownership boundary:
// - command runner abstraction
// - throttle flag interpretation
package power

// Package router applies frames received from the mesh to the note store.
//
// Ownership boundary:
// - resolving delivery acknowledgements of the single in-flight send
// - decoding board commands on the validated board channel
// - arming deferred /ack, /pin and legacy follow-up sends
//
// Frames arrive on a bounded queue fed by the radio receive callback and are
// applied by one goroutine in arrival order.
package router

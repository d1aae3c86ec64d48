// Package link owns the radio device connection.
//
// Ownership boundary:
// - Session: the single owned link state (conn, device path, channel, in-flight delivery, tx spacing)
// - Manager: scan -> power check -> connect -> channel validation -> connected, and back
// - link status events and failure alerts
//
// Only the Manager attaches or releases a connection. Other components use
// the narrow Session accessors and must tolerate the link vanishing between
// check and use.
package link

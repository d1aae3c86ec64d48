// Package radio defines the text radio driver the board consumes.
//
// Ownership boundary:
// - driver/conn/scanner interfaces
// - received packet shape (text and routing/delivery frames)
// - transient receive error classification
// - serial device discovery by glob
//
// Framing, transport and radio-level acknowledgement live in the driver.
package radio

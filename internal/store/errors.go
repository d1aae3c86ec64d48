package store

import "errors"

var (
	ErrNotFound       = errors.New("store: note not found")
	ErrParentNotFound = errors.New("store: parent note not found")
	ErrNotAuthor      = errors.New("store: author mismatch")
	ErrNotEditable    = errors.New("store: note is no longer LAN only")
	ErrNotPublished   = errors.New("store: note has not left the LAN yet")
	ErrNotResendable  = errors.New("store: note is not in LoRa sent state")
	ErrNotPinnable    = errors.New("store: only live root notes can be pinned")
	ErrEmptyBody      = errors.New("store: empty body")
	ErrMissingBoard   = errors.New("store: missing board id")
)

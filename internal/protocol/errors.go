package protocol

import "errors"

var (
	ErrUnknownCommand  = errors.New("protocol: unknown command")
	ErrMalformed       = errors.New("protocol: malformed command")
	ErrMissingID       = errors.New("protocol: missing message id")
	ErrInvalidField    = errors.New("protocol: invalid header field")
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
)

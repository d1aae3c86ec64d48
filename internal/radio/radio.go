package radio

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrDecode     = errors.New("radio: decode error")
	ErrClosed     = errors.New("radio: connection closed")
	ErrNoDevice   = errors.New("radio: no device")
	ErrNoChannels = errors.New("radio: channel table unavailable")
)

// IsTransient reports whether err is a receive/setup decode failure that
// should be dropped or retried rather than tear the link down.
func IsTransient(err error) bool {
	return errors.Is(err, ErrDecode)
}

// PacketKind separates board text from delivery acknowledgements.
type PacketKind int

const (
	PacketText PacketKind = iota + 1
	PacketRouting
)

// RoutingOK is the error reason of a successful delivery acknowledgement.
const RoutingOK = "NONE"

// Packet is one received frame.
type Packet struct {
	Kind    PacketKind
	ID      string
	FromID  string
	Channel int
	Text    string

	// RequestID is the id of the send a routing frame acknowledges.
	RequestID string
	// ErrorReason is set on routing frames; "" or RoutingOK means delivered.
	ErrorReason string
}

// Delivered reports whether a routing frame confirms delivery.
func (p Packet) Delivered() bool {
	r := strings.TrimSpace(p.ErrorReason)
	return r == "" || r == RoutingOK
}

// Channel is one slot of the device channel table.
type Channel struct {
	Index int
	Name  string
}

// Handler receives frames or receive-path errors from a Conn.
type Handler func(Packet, error)

// Conn is an open link to one radio device.
type Conn interface {
	// SendText transmits text on channelIndex and returns the request id.
	SendText(ctx context.Context, channelIndex int, text string, wantAck bool) (string, error)
	Channels(ctx context.Context) ([]Channel, error)
	Subscribe(h Handler)
	Close() error
}

// Driver opens device paths.
type Driver interface {
	Open(ctx context.Context, path string) (Conn, error)
	// Drain discards stale buffered bytes on path before an open.
	Drain(path string) error
}

// Scanner finds candidate devices and checks they are still present.
type Scanner interface {
	Scan() ([]string, error)
	Exists(path string) bool
}

// FindChannel returns the first channel named name.
func FindChannel(chs []Channel, name string) (Channel, bool) {
	for _, ch := range chs {
		if ch.Name == name {
			return ch, true
		}
	}
	return Channel{}, false
}

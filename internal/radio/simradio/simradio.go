// Package simradio is an in-memory radio driver for tests and bench runs.
package simradio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/danmuck/meshboard/internal/radio"
)

// Sent is one transmission recorded by the simulator.
type Sent struct {
	Channel   int
	Text      string
	WantAck   bool
	RequestID string
}

// Radio simulates devices, a channel table and the air.
type Radio struct {
	mu sync.Mutex

	devices  map[string]bool
	channels []radio.Channel
	handlers []radio.Handler
	sent     []Sent
	conn     *conn

	nextID     uint64
	requestIDs []string
	openErrs   []error
	sendErr    error
	opens      int
	drains     int
}

func New(channels ...radio.Channel) *Radio {
	return &Radio{
		devices:  make(map[string]bool),
		channels: append([]radio.Channel(nil), channels...),
		nextID:   1000,
	}
}

// Plug makes path visible to Scan/Exists.
func (r *Radio) Plug(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[path] = true
}

// Unplug removes path, as if the USB cable was pulled.
func (r *Radio) Unplug(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, path)
}

func (r *Radio) SetChannels(channels ...radio.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append([]radio.Channel(nil), channels...)
}

// FailOpen queues errors returned by the next Open calls, in order.
func (r *Radio) FailOpen(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openErrs = append(r.openErrs, errs...)
}

// FailSend makes every SendText return err until cleared with nil.
func (r *Radio) FailSend(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendErr = err
}

// QueueRequestIDs fixes the request ids returned by the next sends.
func (r *Radio) QueueRequestIDs(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestIDs = append(r.requestIDs, ids...)
}

func (r *Radio) Scan() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.devices))
	for path := range r.devices {
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Radio) Exists(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.devices[path]
}

func (r *Radio) Drain(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.devices[path] {
		return fmt.Errorf("drain %s: %w", path, radio.ErrNoDevice)
	}
	r.drains++
	return nil
}

func (r *Radio) Open(ctx context.Context, path string) (radio.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens++
	if len(r.openErrs) > 0 {
		err := r.openErrs[0]
		r.openErrs = r.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if !r.devices[path] {
		return nil, fmt.Errorf("open %s: %w", path, radio.ErrNoDevice)
	}
	c := &conn{r: r, path: path}
	r.conn = c
	r.handlers = nil
	return c, nil
}

// Opens returns how many times Open was called.
func (r *Radio) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

func (r *Radio) Drains() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drains
}

// Sent returns a copy of every transmission so far.
func (r *Radio) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Deliver hands p to the receive handlers of the open connection.
func (r *Radio) Deliver(p radio.Packet) {
	r.dispatch(p, nil)
}

// DeliverError reports a receive-path error to the open connection.
func (r *Radio) DeliverError(err error) {
	r.dispatch(radio.Packet{}, err)
}

// AckDelivery emits the routing frame confirming requestID.
func (r *Radio) AckDelivery(requestID string) {
	r.Deliver(radio.Packet{Kind: radio.PacketRouting, ID: r.newID(), RequestID: requestID, ErrorReason: radio.RoutingOK})
}

// NakDelivery emits a routing frame reporting that requestID was not delivered.
func (r *Radio) NakDelivery(requestID, reason string) {
	r.Deliver(radio.Packet{Kind: radio.PacketRouting, ID: r.newID(), RequestID: requestID, ErrorReason: reason})
}

// Receive emits a text frame from fromID on channel.
func (r *Radio) Receive(fromID string, channel int, text string) radio.Packet {
	p := radio.Packet{Kind: radio.PacketText, ID: r.newID(), FromID: fromID, Channel: channel, Text: text}
	r.Deliver(p)
	return p
}

func (r *Radio) dispatch(p radio.Packet, err error) {
	r.mu.Lock()
	handlers := append([]radio.Handler(nil), r.handlers...)
	r.mu.Unlock()
	for _, h := range handlers {
		h(p, err)
	}
}

func (r *Radio) newID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return strconv.FormatUint(r.nextID, 10)
}

type conn struct {
	r      *Radio
	path   string
	closed bool
}

func (c *conn) SendText(ctx context.Context, channelIndex int, text string, wantAck bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.closed || r.conn != c {
		return "", radio.ErrClosed
	}
	if !r.devices[c.path] {
		return "", fmt.Errorf("write %s: %w", c.path, errors.New("input/output error"))
	}
	if r.sendErr != nil {
		return "", r.sendErr
	}
	var id string
	if len(r.requestIDs) > 0 {
		id = r.requestIDs[0]
		r.requestIDs = r.requestIDs[1:]
	} else {
		r.nextID++
		id = strconv.FormatUint(r.nextID, 10)
	}
	r.sent = append(r.sent, Sent{Channel: channelIndex, Text: text, WantAck: wantAck, RequestID: id})
	return id, nil
}

func (c *conn) Channels(ctx context.Context) ([]radio.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if c.closed {
		return nil, radio.ErrClosed
	}
	if len(c.r.channels) == 0 {
		return nil, radio.ErrNoChannels
	}
	return append([]radio.Channel(nil), c.r.channels...), nil
}

func (c *conn) Subscribe(h radio.Handler) {
	if h == nil {
		return
	}
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if c.r.conn == c {
		c.r.handlers = append(c.r.handlers, h)
	}
}

func (c *conn) Close() error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.r.conn == c {
		c.r.conn = nil
		c.r.handlers = nil
	}
	return nil
}

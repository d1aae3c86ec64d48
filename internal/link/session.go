package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logs "github.com/danmuck/meshboard/internal/logging"
	"github.com/danmuck/meshboard/internal/observability"
	"github.com/danmuck/meshboard/internal/protocol/session"
	"github.com/danmuck/meshboard/internal/radio"
)

var ErrNotReady = errors.New("link: not connected to a validated board channel")

const faultQueueSize = 8

// Session holds the live link state shared by the scheduler, router and manager.
type Session struct {
	channelName string

	mu           sync.RWMutex
	conn         radio.Conn
	path         string
	channelIndex int
	hasChannel   bool
	validated    bool

	outbox  *session.DeliveryOutbox
	limiter *rate.Limiter
	faults  chan error
	sendMu  sync.Mutex
}

// NewSession builds an idle session for the named board channel. txSpacing is
// the minimum gap between transmissions; zero disables spacing.
func NewSession(channelName string, txSpacing time.Duration) *Session {
	limit := rate.Inf
	if txSpacing > 0 {
		limit = rate.Every(txSpacing)
	}
	return &Session{
		channelName: channelName,
		outbox:      session.NewDeliveryOutbox(),
		limiter:     rate.NewLimiter(limit, 1),
		faults:      make(chan error, faultQueueSize),
	}
}

func (s *Session) ChannelName() string {
	return s.channelName
}

// Connected reports whether a device link is attached.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// Ready reports whether the link is attached and the board channel validated.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil && s.validated
}

// ChannelIndex returns the device slot of the board channel, when known.
func (s *Session) ChannelIndex() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channelIndex, s.conn != nil && s.hasChannel
}

func (s *Session) DevicePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// SendText transmits text on the board channel, spaced by the tx limiter.
// I/O failures are reported to the manager as link faults.
func (s *Session) SendText(ctx context.Context, text string, wantAck bool) (string, error) {
	s.mu.RLock()
	conn, index, ready := s.conn, s.channelIndex, s.conn != nil && s.validated
	s.mu.RUnlock()
	if !ready {
		return "", ErrNotReady
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	id, err := conn.SendText(ctx, index, text, wantAck)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, radio.ErrClosed) {
			s.reportFaultIf(conn, err)
		}
		return "", fmt.Errorf("link: send: %w", err)
	}
	return id, nil
}

func (s *Session) BeginDelivery(p session.PendingDelivery) error {
	if err := s.outbox.Begin(p); err != nil {
		return err
	}
	observability.SetInFlight(true)
	return nil
}

func (s *Session) ResolveDelivery(requestID string) (session.PendingDelivery, bool) {
	p, ok := s.outbox.Resolve(requestID)
	if ok {
		observability.SetInFlight(s.outbox.InFlight())
	}
	return p, ok
}

func (s *Session) ExpireDeliveries(now time.Time, timeout time.Duration) []session.PendingDelivery {
	out := s.outbox.Expire(now, timeout)
	if len(out) > 0 {
		observability.SetInFlight(s.outbox.InFlight())
	}
	return out
}

func (s *Session) InFlight() bool {
	return s.outbox.InFlight()
}

func (s *Session) PendingDeliveries() []session.PendingDelivery {
	return s.outbox.List()
}

func (s *Session) attach(conn radio.Conn, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.path = path
	s.hasChannel = false
	s.validated = false
	for {
		select {
		case <-s.faults:
		default:
			return
		}
	}
}

func (s *Session) setChannel(index int, found, validated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelIndex = index
	s.hasChannel = found
	s.validated = validated
}

// release detaches the link and returns the handle for the caller to close.
func (s *Session) release() radio.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.conn
	s.conn = nil
	s.path = ""
	s.hasChannel = false
	s.validated = false
	return conn
}

func (s *Session) isCurrent(conn radio.Conn) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil && s.conn == conn
}

// reportFaultIf queues err when conn is still the attached link.
func (s *Session) reportFaultIf(conn radio.Conn, err error) {
	if !s.isCurrent(conn) {
		return
	}
	select {
	case s.faults <- err:
	default:
		logs.Debugf("link.Session.reportFault queue full err=%v", err)
	}
}

func (s *Session) drainFaults() []error {
	var out []error
	for {
		select {
		case err := <-s.faults:
			out = append(out, err)
		default:
			return out
		}
	}
}

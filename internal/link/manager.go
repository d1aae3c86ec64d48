package link

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/meshboard/internal/events"
	logs "github.com/danmuck/meshboard/internal/logging"
	"github.com/danmuck/meshboard/internal/observability"
	"github.com/danmuck/meshboard/internal/power"
	"github.com/danmuck/meshboard/internal/protocol/session"
	"github.com/danmuck/meshboard/internal/radio"
)

var ErrInvalidPollInterval = errors.New("link: invalid poll interval")

// State is one step of the link lifecycle.
type State string

const (
	StateDisconnected      State = "disconnected"
	StateScanning          State = "scanning"
	StatePowerCheck        State = "power_check"
	StateConnecting        State = "connecting"
	StateChannelValidating State = "channel_validating"
	StateConnected         State = "connected"
)

var allStates = []string{
	string(StateDisconnected),
	string(StateScanning),
	string(StatePowerCheck),
	string(StateConnecting),
	string(StateChannelValidating),
	string(StateConnected),
}

// Status is the externally visible link health.
type Status struct {
	State            State
	Online           bool
	ChannelValidated bool
	ErrorMessage     string
	PowerIssue       bool
	DevicePath       string
}

func (s Status) event() events.LinkStatus {
	return events.LinkStatus{
		Online:           s.Online,
		ChannelValidated: s.ChannelValidated,
		ErrorMessage:     s.ErrorMessage,
		PowerIssue:       s.PowerIssue,
		State:            string(s.State),
	}
}

func (s Status) sameVisible(o Status) bool {
	return s.Online == o.Online &&
		s.ChannelValidated == o.ChannelValidated &&
		s.ErrorMessage == o.ErrorMessage &&
		s.PowerIssue == o.PowerIssue
}

// Config tunes the Manager.
type Config struct {
	PollInterval    time.Duration
	PowerCooldown   time.Duration
	ConnectAttempts int
	Backoff         session.BackoffConfig
	// SettleDelay is the pause between open and reading the channel table.
	SettleDelay time.Duration
}

func DefaultConfig() Config {
	rel := session.DefaultConfig()
	return Config{
		PollInterval:    2 * time.Second,
		PowerCooldown:   10 * time.Second,
		ConnectAttempts: rel.ConnectAttempts,
		Backoff:         rel.Backoff,
		SettleDelay:     2 * time.Second,
	}
}

// Manager drives the link state machine. It is the only writer of Session link state.
type Manager struct {
	cfg      Config
	session  *Session
	driver   radio.Driver
	scanner  radio.Scanner
	probe    power.Probe
	pub      events.Publisher
	onPacket func(radio.Packet)
	now      func() time.Time

	mu           sync.RWMutex
	status       Status
	powerRetryAt time.Time
}

// NewManager wires a manager. onPacket receives every decoded frame of the attached link.
func NewManager(cfg Config, sess *Session, driver radio.Driver, scanner radio.Scanner, probe power.Probe, pub events.Publisher, onPacket func(radio.Packet)) *Manager {
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 1
	}
	if probe == nil {
		probe = power.AlwaysNormal{}
	}
	if pub == nil {
		pub = events.Discard{}
	}
	return &Manager{
		cfg:      cfg,
		session:  sess,
		driver:   driver,
		scanner:  scanner,
		probe:    probe,
		pub:      pub,
		onPacket: onPacket,
		now:      time.Now,
		status:   Status{State: StateDisconnected},
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run polls the state machine until ctx ends, then releases the device.
func (m *Manager) Run(ctx context.Context) error {
	if m.cfg.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	defer m.shutdown()
	observability.SetLinkState(string(StateDisconnected), allStates)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		m.Step(ctx)
		select {
		case <-ctx.Done():
			logs.Infof("link.Manager.Run shutdown")
			return nil
		case <-ticker.C:
		}
	}
}

// Step runs one pass: monitor an attached link, or try to attach one.
func (m *Manager) Step(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if m.session.Connected() {
		m.monitor()
		return
	}
	m.establish(ctx)
}

func (m *Manager) monitor() {
	path := m.session.DevicePath()
	if !m.scanner.Exists(path) {
		m.fail("device_gone", fmt.Sprintf("radio device %s disappeared (USB unplugged?)", path))
		return
	}
	if faults := m.session.drainFaults(); len(faults) > 0 {
		m.fail("io_error", fmt.Sprintf("radio I/O error on %s: %v", path, faults[0]))
	}
}

func (m *Manager) establish(ctx context.Context) {
	m.setState(StateScanning, nil)
	paths, err := m.scanner.Scan()
	if err != nil || len(paths) == 0 {
		if err != nil {
			logs.Warnf("link.Manager.establish scan err=%v", err)
		}
		m.setState(StateDisconnected, func(s *Status) {
			s.Online, s.ChannelValidated, s.DevicePath = false, false, ""
			if !s.PowerIssue {
				s.ErrorMessage = ""
			}
		})
		return
	}
	path := paths[0]

	if !m.checkPower(ctx) {
		return
	}

	m.setState(StateConnecting, func(s *Status) { s.DevicePath = path })
	conn, err := m.connect(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logs.Warnf("link.Manager.establish connect path=%q err=%v", path, err)
		observability.RecordLinkFailure("connect")
		m.setState(StateDisconnected, func(s *Status) {
			s.Online, s.ChannelValidated = false, false
			s.ErrorMessage = fmt.Sprintf("cannot connect to %s: %v", path, err)
		})
		return
	}

	m.session.attach(conn, path)
	conn.Subscribe(radio.SuppressTransient(
		m.onPacket,
		func(err error) { m.session.reportFaultIf(conn, err) },
		func(error) { observability.RecordRadioReceived("decode_error") },
	))

	m.setState(StateChannelValidating, func(s *Status) { s.Online = true })
	if !sleepCtx(ctx, m.cfg.SettleDelay) {
		return
	}
	chs, err := conn.Channels(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.fail("channel_read", fmt.Sprintf("cannot read device channel table on %s: %v", path, err))
		return
	}
	index, found, validated, reason := m.validateChannel(chs)
	m.session.setChannel(index, found, validated)

	m.setState(StateConnected, func(s *Status) {
		s.Online = true
		s.ChannelValidated = validated
		s.ErrorMessage = reason
	})
	logs.Infof("link.Manager.establish connected path=%q channel=%q index=%d validated=%v", path, m.session.ChannelName(), index, validated)
}

// checkPower returns false when connecting must wait for power to recover.
func (m *Manager) checkPower(ctx context.Context) bool {
	m.mu.RLock()
	retryAt := m.powerRetryAt
	m.mu.RUnlock()
	if m.now().Before(retryAt) {
		m.setState(StateDisconnected, nil)
		return false
	}

	m.setState(StatePowerCheck, nil)
	health, err := m.probe.Check(ctx)
	if err != nil {
		// An unreadable sensor does not block the radio.
		logs.Warnf("link.Manager.checkPower probe err=%v", err)
		health = power.Health{Normal: true}
	}
	if !health.Normal {
		m.mu.Lock()
		m.powerRetryAt = m.now().Add(m.cfg.PowerCooldown)
		m.mu.Unlock()
		logs.Warnf("link.Manager.checkPower abnormal reason=%q cooldown=%s", health.Reason, m.cfg.PowerCooldown)
		m.setState(StateDisconnected, func(s *Status) {
			s.Online, s.ChannelValidated = false, false
			s.PowerIssue = true
			s.ErrorMessage = "power issue: " + health.Reason
		})
		return false
	}
	m.setState(StatePowerCheck, func(s *Status) {
		if s.PowerIssue {
			s.PowerIssue = false
			s.ErrorMessage = ""
		}
	})
	return true
}

// connect opens path with bounded attempts. Only transient decode errors are retried.
func (m *Manager) connect(ctx context.Context, path string) (radio.Conn, error) {
	backoff := m.cfg.Backoff.Steady()
	var lastErr error
	for attempt := 1; attempt <= m.cfg.ConnectAttempts; attempt++ {
		if err := m.driver.Drain(path); err != nil {
			logs.Debugf("link.Manager.connect drain path=%q err=%v", path, err)
		}
		conn, err := m.driver.Open(ctx, path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if !radio.IsTransient(err) {
			return nil, err
		}
		logs.Warnf("link.Manager.connect transient attempt=%d/%d path=%q err=%v", attempt, m.cfg.ConnectAttempts, path, err)
		if attempt < m.cfg.ConnectAttempts {
			if !sleepCtx(ctx, backoff.Delay(attempt, nil)) {
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (m *Manager) validateChannel(chs []radio.Channel) (index int, found, validated bool, reason string) {
	name := m.session.ChannelName()
	ch, ok := radio.FindChannel(chs, name)
	if !ok {
		names := make([]string, 0, len(chs))
		for _, c := range chs {
			names = append(names, fmt.Sprintf("%d:%s", c.Index, c.Name))
		}
		return 0, false, false, fmt.Sprintf("channel %q not found on device (available: %s)", name, strings.Join(names, ", "))
	}
	if ch.Index == 0 {
		return ch.Index, true, false, fmt.Sprintf("channel %q is the primary channel (index 0); configure it on a secondary slot so board traffic is not shared with the default channel", name)
	}
	return ch.Index, true, true, ""
}

// fail releases the link and raises a failure alert.
func (m *Manager) fail(reason, cause string) {
	if conn := m.session.release(); conn != nil {
		if err := conn.Close(); err != nil {
			logs.Debugf("link.Manager.fail close err=%v", err)
		}
	}
	logs.Warnf("link.Manager.fail reason=%s cause=%q", reason, cause)
	observability.RecordLinkFailure(reason)
	m.setState(StateDisconnected, func(s *Status) {
		s.Online, s.ChannelValidated, s.DevicePath = false, false, ""
		s.ErrorMessage = cause
	})
	m.pub.Publish(events.Failure(cause))
}

func (m *Manager) shutdown() {
	if conn := m.session.release(); conn != nil {
		_ = conn.Close()
		logs.Infof("link.Manager.shutdown released device")
	}
	m.setState(StateDisconnected, func(s *Status) {
		s.Online, s.ChannelValidated, s.DevicePath = false, false, ""
	})
}

// setState moves to state, applies mutate, and publishes when visible fields change.
func (m *Manager) setState(state State, mutate func(*Status)) {
	m.mu.Lock()
	prev := m.status
	next := prev
	next.State = state
	if mutate != nil {
		mutate(&next)
	}
	m.status = next
	m.mu.Unlock()

	if prev.State != next.State {
		logs.Debugf("link.Manager.setState %s -> %s", prev.State, next.State)
		observability.SetLinkState(string(next.State), allStates)
	}
	if !prev.sameVisible(next) {
		m.pub.Publish(events.Status(next.event()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

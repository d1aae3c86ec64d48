package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/meshboard/internal/board"
	"github.com/danmuck/meshboard/internal/events"
	logs "github.com/danmuck/meshboard/internal/logging"
	"github.com/danmuck/meshboard/internal/observability"
	"github.com/danmuck/meshboard/internal/protocol"
	"github.com/danmuck/meshboard/internal/protocol/session"
	"github.com/danmuck/meshboard/internal/store"
)

// MinInterval is the floor applied to the configured send interval.
const MinInterval = 10 * time.Second

type Config struct {
	Interval   time.Duration
	AckTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:   MinInterval,
		AckTimeout: session.DefaultConfig().AckTimeout,
	}
}

// Link is the slice of link.Session the scheduler drives.
type Link interface {
	ChannelName() string
	Ready() bool
	InFlight() bool
	SendText(ctx context.Context, text string, wantAck bool) (string, error)
	BeginDelivery(p session.PendingDelivery) error
	ExpireDeliveries(now time.Time, timeout time.Duration) []session.PendingDelivery
}

// Notes is the slice of the note store the scheduler reads and updates.
type Notes interface {
	NextPending(ctx context.Context, boardID string) (store.Note, bool, error)
	TakeNeedsUpdate(ctx context.Context, boardID string) (store.Note, bool, error)
	MarkSending(ctx context.Context, noteID string) (bool, error)
	RevertToLanOnly(ctx context.Context, noteID string) (bool, error)
}

type Scheduler struct {
	cfg   Config
	link  Link
	notes Notes
	pub   events.Publisher
	now   func() time.Time
}

func New(cfg Config, link Link, notes Notes, pub events.Publisher) *Scheduler {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Scheduler{cfg: cfg, link: link, notes: notes, pub: pub, now: time.Now}
}

// Interval returns the effective tick interval.
func (s *Scheduler) Interval() time.Duration {
	if s.cfg.Interval < MinInterval {
		return MinInterval
	}
	return s.cfg.Interval
}

// Run ticks until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.Interval()
	logs.Infof("scheduler.Run start interval=%s ack_timeout=%s", interval, s.cfg.AckTimeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logs.Infof("scheduler.Run shutdown")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass. At most one frame is transmitted.
func (s *Scheduler) Tick(ctx context.Context) {
	boardID := s.link.ChannelName()
	s.expire(ctx, boardID)

	if !s.link.Ready() || s.link.InFlight() {
		return
	}
	if s.sendUpdate(ctx, boardID) {
		return
	}
	s.sendNext(ctx, boardID)
}

func (s *Scheduler) expire(ctx context.Context, boardID string) {
	for _, p := range s.link.ExpireDeliveries(s.now(), s.cfg.AckTimeout) {
		observability.RecordDelivery("timeout")
		reverted, err := s.notes.RevertToLanOnly(ctx, p.NoteID)
		if err != nil {
			logs.Errf("scheduler.expire revert note=%q request=%q err=%v", p.NoteID, p.RequestID, err)
			continue
		}
		logs.Warnf("scheduler.expire ack timeout note=%q request=%q reverted=%v", p.NoteID, p.RequestID, reverted)
		if reverted {
			s.pub.Publish(events.Refresh(boardID))
		}
	}
}

// sendUpdate propagates one flagged metadata change. It reports whether a
// flagged note was taken, sent or not.
func (s *Scheduler) sendUpdate(ctx context.Context, boardID string) bool {
	n, ok, err := s.notes.TakeNeedsUpdate(ctx, boardID)
	if err != nil {
		logs.Errf("scheduler.sendUpdate board=%q err=%v", boardID, err)
		return false
	}
	if !ok {
		return false
	}
	msgID := n.MsgID()
	if msgID == "" {
		logs.Debugf("scheduler.sendUpdate skip note=%q no network id", n.NoteID)
		return true
	}

	cmd := protocol.Color(msgID, n.AuthorKey, board.ColorIndex(n.BgColor))
	if n.Deleted {
		cmd = protocol.Archive(msgID, n.AuthorKey)
	}
	text, err := protocol.Encode(cmd)
	if err != nil {
		logs.Errf("scheduler.sendUpdate encode note=%q kind=%s err=%v", n.NoteID, cmd.Kind, err)
		return true
	}
	_, err = s.link.SendText(ctx, text, false)
	observability.RecordRadioSend(string(cmd.Kind), err)
	if err != nil {
		logs.Warnf("scheduler.sendUpdate send note=%q kind=%s err=%v", n.NoteID, cmd.Kind, err)
		return true
	}
	logs.Infof("scheduler.sendUpdate sent note=%q text=%q", n.NoteID, text)
	s.pub.Publish(events.Refresh(boardID))
	return true
}

func (s *Scheduler) sendNext(ctx context.Context, boardID string) {
	n, ok, err := s.notes.NextPending(ctx, boardID)
	if err != nil {
		logs.Errf("scheduler.sendNext board=%q err=%v", boardID, err)
		return
	}
	if !ok {
		return
	}

	cmd := board.OutboundCommand(n, protocol.NewID)
	text, err := protocol.Encode(cmd)
	if err != nil {
		logs.Errf("scheduler.sendNext encode note=%q err=%v", n.NoteID, err)
		return
	}
	requestID, err := s.link.SendText(ctx, text, true)
	observability.RecordRadioSend(string(cmd.Kind), err)
	if err != nil {
		logs.Warnf("scheduler.sendNext send note=%q err=%v", n.NoteID, err)
		return
	}
	if requestID == "" {
		logs.Warnf("scheduler.sendNext note=%q sent without request id", n.NoteID)
		return
	}

	// The note is Sending before its delivery becomes resolvable.
	marked, err := s.notes.MarkSending(ctx, n.NoteID)
	if err != nil {
		logs.Errf("scheduler.sendNext mark sending note=%q err=%v", n.NoteID, err)
		return
	}
	if !marked {
		logs.Warnf("scheduler.sendNext note=%q changed while sending, not tracked", n.NoteID)
		return
	}
	err = s.link.BeginDelivery(session.PendingDelivery{
		RequestID: requestID,
		NoteID:    n.NoteID,
		AuthorKey: n.AuthorKey,
		BgColor:   n.BgColor,
		SentAt:    s.now(),
	})
	if err != nil {
		if errors.Is(err, session.ErrInFlight) {
			logs.Warnf("scheduler.sendNext note=%q request=%q lost in-flight race", n.NoteID, requestID)
		} else {
			logs.Errf("scheduler.sendNext track note=%q request=%q err=%v", n.NoteID, requestID, err)
		}
		if _, err := s.notes.RevertToLanOnly(ctx, n.NoteID); err != nil {
			logs.Errf("scheduler.sendNext revert note=%q err=%v", n.NoteID, err)
		}
		return
	}
	logs.Infof("scheduler.sendNext sent note=%q request=%q", n.NoteID, requestID)
	s.pub.Publish(events.Refresh(boardID))
}

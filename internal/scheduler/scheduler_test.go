package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/meshboard/internal/board"
	"github.com/danmuck/meshboard/internal/events"
	"github.com/danmuck/meshboard/internal/link"
	"github.com/danmuck/meshboard/internal/protocol/session"
	"github.com/danmuck/meshboard/internal/radio"
	"github.com/danmuck/meshboard/internal/radio/simradio"
	"github.com/danmuck/meshboard/internal/store"
	"github.com/danmuck/meshboard/internal/testutil/testlog"
)

const boardID = "noteboard"

var errNoAir = errors.New("input/output error")

type harness struct {
	sim   *simradio.Radio
	sess  *link.Session
	notes *store.Store
	sched *Scheduler
	now   time.Time
}

func newHarness(t *testing.T, connected bool) *harness {
	t.Helper()
	h := &harness{now: time.UnixMilli(1700000000000)}
	notes, err := store.Open(filepath.Join(t.TempDir(), "board.db"), store.Options{Now: func() time.Time { return h.now }})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = notes.Close() })
	h.notes = notes

	h.sim = simradio.New(radio.Channel{Index: 0, Name: "LongFast"}, radio.Channel{Index: 2, Name: boardID})
	h.sess = link.NewSession(boardID, 0)
	if connected {
		h.sim.Plug("/dev/ttyUSB0")
		m := link.NewManager(link.Config{PollInterval: time.Second, ConnectAttempts: 1}, h.sess, h.sim, h.sim, nil, nil, nil)
		m.Step(context.Background())
		if !h.sess.Ready() {
			t.Fatalf("expected ready link, status=%+v", m.Status())
		}
	}

	h.sched = New(Config{Interval: time.Second, AckTimeout: 30 * time.Second}, h.sess, notes, nil)
	h.sched.now = func() time.Time { return h.now }
	return h
}

func (h *harness) createNote(t *testing.T, body, author, parent string) store.Note {
	t.Helper()
	n, err := h.notes.CreateLocalNote(context.Background(), store.LocalNote{
		BoardID:         boardID,
		Body:            body,
		BgColor:         board.ColorFor(2),
		AuthorKey:       author,
		ParentLoraMsgID: parent,
	})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	h.now = h.now.Add(time.Millisecond)
	return n
}

func TestTickSendsOldestPendingNote(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, true)
	ctx := context.Background()
	n1 := h.createNote(t, "hello", "u1", "")
	h.createNote(t, "second", "u1", "")
	h.sim.QueueRequestIDs("rq1")

	h.sched.Tick(ctx)

	sent := h.sim.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one frame, got %+v", sent)
	}
	if sent[0].Text != "/msg [new,2,u1]hello" || !sent[0].WantAck || sent[0].Channel != 2 {
		t.Fatalf("unexpected frame: %+v", sent[0])
	}
	got, err := h.notes.GetNote(ctx, n1.NoteID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if got.Status != store.StatusSending {
		t.Fatalf("expected Sending, got %q", got.Status)
	}
	pending := h.sess.PendingDeliveries()
	if len(pending) != 1 || pending[0].RequestID != "rq1" || pending[0].NoteID != n1.NoteID {
		t.Fatalf("unexpected pending deliveries: %+v", pending)
	}

	h.sched.Tick(ctx)
	if len(h.sim.Sent()) != 1 {
		t.Fatalf("expected no second send while in flight")
	}
}

func TestTickSendsReplyWithParent(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, true)
	ctx := context.Background()
	if _, _, err := h.notes.CreateRadioNote(ctx, store.RadioNote{BoardID: boardID, LoraMsgID: "77", Body: "root", AuthorKey: "lora-a"}); err != nil {
		t.Fatalf("radio note: %v", err)
	}
	h.createNote(t, "re", "u1", "77")

	h.sched.Tick(ctx)

	sent := h.sim.Sent()
	if len(sent) != 1 || sent[0].Text != "/reply <new,2,u1>[77]re" {
		t.Fatalf("unexpected frames: %+v", sent)
	}
}

func TestTickExpiresUnackedDelivery(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, true)
	ctx := context.Background()
	bus := events.NewBus()
	refresh, cancel := bus.Subscribe(8)
	defer cancel()
	h.sched.pub = bus
	n1 := h.createNote(t, "hello", "u1", "")

	h.sched.Tick(ctx)
	for len(refresh) > 0 {
		<-refresh
	}

	h.now = h.now.Add(30 * time.Second)
	h.sched.Tick(ctx)
	if !h.sess.InFlight() {
		t.Fatalf("delivery must still be pending at exactly the timeout")
	}

	h.now = h.now.Add(time.Second)
	h.sim.FailSend(errNoAir)
	h.sched.Tick(ctx)
	if h.sess.InFlight() {
		t.Fatalf("expected delivery expired")
	}
	got, err := h.notes.GetNote(ctx, n1.NoteID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if got.Status != store.StatusLanOnly {
		t.Fatalf("expected LAN only after timeout, got %q", got.Status)
	}
	select {
	case ev := <-refresh:
		if ev.Kind != events.KindRefreshNotes {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("expected refresh event")
	}
}

func TestTickSkipsWhenLinkNotReady(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, false)
	n1 := h.createNote(t, "hello", "u1", "")

	h.sched.Tick(context.Background())

	got, err := h.notes.GetNote(context.Background(), n1.NoteID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if got.Status != store.StatusLanOnly || h.sess.InFlight() {
		t.Fatalf("expected note untouched, got %+v", got)
	}
}

func TestTickPropagatesArchiveAndColor(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, true)
	ctx := context.Background()
	n, _, err := h.notes.CreateRadioNote(ctx, store.RadioNote{BoardID: boardID, LoraMsgID: "55", Body: "x", AuthorKey: "u1", BgColor: board.ColorFor(1)})
	if err != nil {
		t.Fatalf("radio note: %v", err)
	}
	if _, err := h.notes.SetColor(ctx, n.NoteID, "u1", board.ColorFor(4), false); err != nil {
		t.Fatalf("set color: %v", err)
	}

	h.sched.Tick(ctx)
	sent := h.sim.Sent()
	if len(sent) != 1 || sent[0].Text != "/color [55]u1,4" || sent[0].WantAck {
		t.Fatalf("unexpected frames: %+v", sent)
	}

	if _, err := h.notes.ArchiveNote(ctx, n.NoteID, "u1", false); err != nil {
		t.Fatalf("archive: %v", err)
	}
	h.sched.Tick(ctx)
	sent = h.sim.Sent()
	if len(sent) != 2 || sent[1].Text != "/archive [55]u1" {
		t.Fatalf("unexpected frames: %+v", sent)
	}

	h.sched.Tick(ctx)
	if len(h.sim.Sent()) != 2 {
		t.Fatalf("update flag must be cleared after send")
	}
}

func TestIntervalHasFloor(t *testing.T) {
	testlog.Start(t)
	s := New(Config{Interval: 3 * time.Second}, nil, nil, nil)
	if s.Interval() != MinInterval {
		t.Fatalf("expected %s, got %s", MinInterval, s.Interval())
	}
	s = New(Config{Interval: 45 * time.Second}, nil, nil, nil)
	if s.Interval() != 45*time.Second {
		t.Fatalf("expected 45s, got %s", s.Interval())
	}
}

// trackingLink observes the note at the moment a delivery is registered.
type trackingLink struct {
	*link.Session
	notes    *store.Store
	trackErr error
	seen     store.Status
}

func (l *trackingLink) BeginDelivery(p session.PendingDelivery) error {
	n, err := l.notes.GetNote(context.Background(), p.NoteID)
	if err != nil {
		return err
	}
	l.seen = n.Status
	if l.trackErr != nil {
		return l.trackErr
	}
	return l.Session.BeginDelivery(p)
}

func TestTickMarksSendingBeforeTrackingDelivery(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, true)
	ctx := context.Background()
	n := h.createNote(t, "hello", "u1", "")
	tl := &trackingLink{Session: h.sess, notes: h.notes}
	h.sched.link = tl

	h.sched.Tick(ctx)

	if tl.seen != store.StatusSending {
		t.Fatalf("delivery tracked while note was %q", tl.seen)
	}
	if !h.sess.InFlight() {
		t.Fatalf("expected delivery in flight")
	}
	got, err := h.notes.GetNote(ctx, n.NoteID)
	if err != nil || got.Status != store.StatusSending {
		t.Fatalf("expected Sending, got %q err=%v", got.Status, err)
	}
}

func TestTickRevertsWhenDeliveryCannotBeTracked(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, true)
	ctx := context.Background()
	n := h.createNote(t, "hello", "u1", "")
	h.sched.link = &trackingLink{Session: h.sess, notes: h.notes, trackErr: session.ErrInFlight}

	h.sched.Tick(ctx)

	got, err := h.notes.GetNote(ctx, n.NoteID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if got.Status != store.StatusLanOnly {
		t.Fatalf("expected LanOnly after failed tracking, got %q", got.Status)
	}
	if h.sess.InFlight() {
		t.Fatalf("no delivery should be pending")
	}
}

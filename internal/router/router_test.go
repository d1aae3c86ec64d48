package router

import (
	"context"
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

const (
	boardID      = "noteboard"
	boardChannel = 2
)

var parked = session.RetryPolicy{Delay: time.Hour, Attempts: 1}

type harness struct {
	sim      *simradio.Radio
	sess     *link.Session
	notes    *store.Store
	deferred *session.Deferred
	router   *Router
	bus      *events.Bus
	stream   <-chan events.Event
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{}
	notes, err := store.Open(filepath.Join(t.TempDir(), "board.db"), store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = notes.Close() })
	h.notes = notes

	h.deferred = session.NewDeferred(context.Background())
	t.Cleanup(h.deferred.Close)

	h.bus = events.NewBus()
	stream, cancel := h.bus.Subscribe(64)
	t.Cleanup(cancel)
	h.stream = stream

	h.sim = simradio.New(radio.Channel{Index: 0, Name: "LongFast"}, radio.Channel{Index: boardChannel, Name: boardID})
	h.sim.Plug("/dev/ttyACM0")
	h.sess = link.NewSession(boardID, 0)
	h.router = New(cfg, h.sess, notes, h.deferred, h.bus)
	m := link.NewManager(link.Config{PollInterval: time.Second, ConnectAttempts: 1}, h.sess, h.sim, h.sim, nil, nil, h.router.Enqueue)
	m.Step(context.Background())
	if !h.sess.Ready() {
		t.Fatalf("expected ready link, status=%+v", m.Status())
	}
	return h
}

func parkedConfig() Config {
	return Config{Ack: parked, Followup: parked}
}

// drain applies every queued frame.
func (h *harness) drain(ctx context.Context) {
	for len(h.router.frames) > 0 {
		h.router.Handle(ctx, <-h.router.frames)
	}
}

func (h *harness) count(kind events.Kind) int {
	n := 0
	for {
		select {
		case ev := <-h.stream:
			if ev.Kind == kind {
				n++
			}
		default:
			return n
		}
	}
}

// sendLocal publishes a local note the way the scheduler does and returns it.
func (h *harness) sendLocal(t *testing.T, requestID string) store.Note {
	t.Helper()
	ctx := context.Background()
	n, err := h.notes.CreateLocalNote(ctx, store.LocalNote{BoardID: boardID, Body: "hello", BgColor: board.ColorFor(2), AuthorKey: "u1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.sim.QueueRequestIDs(requestID)
	id, err := h.sess.SendText(ctx, "/msg [new,2,u1]hello", true)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := h.sess.BeginDelivery(session.PendingDelivery{RequestID: id, NoteID: n.NoteID, AuthorKey: n.AuthorKey, BgColor: n.BgColor, SentAt: time.Now()}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := h.notes.MarkSending(ctx, n.NoteID); err != nil {
		t.Fatalf("mark sending: %v", err)
	}
	return n
}

func TestDeliveryAckMarksNoteSent(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, parkedConfig())
	ctx := context.Background()
	n := h.sendLocal(t, "rq1")

	h.sim.AckDelivery("rq1")
	h.drain(ctx)

	got, err := h.notes.GetNote(ctx, n.NoteID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != store.StatusLoraSent || got.MsgID() != "rq1" {
		t.Fatalf("unexpected note after ack: %+v", got)
	}
	if h.sess.InFlight() {
		t.Fatalf("in-flight flag must be cleared")
	}
	if h.count(events.KindRefreshNotes) != 1 {
		t.Fatalf("expected one refresh event")
	}
	if h.deferred.Len() != 0 {
		t.Fatalf("expected no follow-ups, got %d", h.deferred.Len())
	}
}

func TestDeliveryAckForUnknownRequestIsIgnored(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, parkedConfig())
	ctx := context.Background()
	n := h.sendLocal(t, "rq1")

	h.sim.AckDelivery("other")
	h.drain(ctx)

	got, _ := h.notes.GetNote(ctx, n.NoteID)
	if got.Status != store.StatusSending || !h.sess.InFlight() {
		t.Fatalf("unexpected state: status=%q inflight=%v", got.Status, h.sess.InFlight())
	}
}

func TestDeliveryNakRevertsNote(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, parkedConfig())
	ctx := context.Background()
	n := h.sendLocal(t, "rq1")

	h.sim.NakDelivery("rq1", "MAX_RETRANSMIT")
	h.drain(ctx)

	got, _ := h.notes.GetNote(ctx, n.NoteID)
	if got.Status != store.StatusLanOnly || got.MsgID() != "" {
		t.Fatalf("expected LAN only without id, got %+v", got)
	}
	if h.sess.InFlight() {
		t.Fatalf("nak must clear the in-flight flag")
	}
}

func TestDeliveredPinnedNoteSchedulesPin(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, parkedConfig())
	ctx := context.Background()
	n := h.sendLocal(t, "rq1")
	if _, err := h.notes.PinNote(ctx, n.NoteID); err != nil {
		t.Fatalf("pin: %v", err)
	}

	h.sim.AckDelivery("rq1")
	h.drain(ctx)

	if !h.deferred.Pending("pin:rq1") {
		t.Fatalf("expected deferred /pin")
	}
}

func TestLegacyFollowupsScheduled(t *testing.T) {
	testlog.Start(t)
	cfg := parkedConfig()
	cfg.LegacyFollowups = true
	h := newHarness(t, cfg)
	ctx := context.Background()
	h.sendLocal(t, "rq1")

	h.sim.AckDelivery("rq1")
	h.drain(ctx)

	if !h.deferred.Pending("author:rq1") || !h.deferred.Pending("color:rq1") {
		t.Fatalf("expected /author and /color follow-ups, len=%d", h.deferred.Len())
	}
}

func TestNewMessageStoredAndAckScheduled(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, parkedConfig())
	ctx := context.Background()

	p := h.sim.Receive("!a1b2c3d4", boardChannel, "/msg [new,3,lora-x]hi there")
	h.drain(ctx)

	n, err := h.notes.GetByLoraMsgID(ctx, p.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if n.Body != "hi there" || n.AuthorKey != "lora-x" || n.BgColor != board.ColorFor(3) || n.Status != store.StatusLoraReceived {
		t.Fatalf("unexpected note: %+v", n)
	}
	if n.LoraNodeID.String != "!a1b2c3d4" {
		t.Fatalf("expected sender node id, got %+v", n.LoraNodeID)
	}
	if !h.deferred.Pending("ack:" + p.ID) {
		t.Fatalf("expected deferred ack")
	}
	if h.count(events.KindRefreshNotes) != 1 {
		t.Fatalf("expected refresh")
	}
}

func TestLegacyMessageDefaultsAuthorToSender(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, parkedConfig())
	ctx := context.Background()

	p := h.sim.Receive("abcd1234", boardChannel, "/msg [new]legacy body")
	h.drain(ctx)

	n, err := h.notes.GetByLoraMsgID(ctx, p.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if n.AuthorKey != "lora-abcd1234" || n.BgColor != board.ColorFor(0) {
		t.Fatalf("unexpected note: %+v", n)
	}
}

func TestDuplicateResendStoresOnceAndReschedulesAck(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, parkedConfig())
	ctx := context.Background()

	h.sim.Receive("n1", boardChannel, "/msg [55,1,u9]body")
	h.sim.Receive("n2", boardChannel, "/msg [55,1,u9]body")
	h.drain(ctx)

	notes, err := h.notes.ListBoard(ctx, boardID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(notes) != 1 || notes[0].MsgID() != "55" {
		t.Fatalf("expected a single note, got %+v", notes)
	}
	if h.deferred.Len() != 1 || !h.deferred.Pending("ack:55") {
		t.Fatalf("expected one pending ack, got %d", h.deferred.Len())
	}
	if h.count(events.KindRefreshNotes) != 1 {
		t.Fatalf("duplicate must not refresh")
	}
}

func TestReplyBeforeParentIsRelinked(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, parkedConfig())
	ctx := context.Background()

	h.sim.Receive("n1", boardChannel, "/reply <90,0,u2>[80]child")
	h.drain(ctx)
	child, err := h.notes.GetByLoraMsgID(ctx, "90")
	if err != nil {
		t.Fatalf("lookup child: %v", err)
	}
	if !child.IsTempParentNote || child.ParentMsgID() != "80" {
		t.Fatalf("expected temp parent, got %+v", child)
	}

	h.sim.Receive("n1", boardChannel, "/msg [80,0,u1]parent")
	h.drain(ctx)
	child, _ = h.notes.GetByLoraMsgID(ctx, "90")
	if child.IsTempParentNote {
		t.Fatalf("expected child relinked")
	}
}

func TestOtherChannelIgnored(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, parkedConfig())
	ctx := context.Background()

	h.sim.Receive("n1", 0, "/msg [new,1,u1]wrong channel")
	h.sim.Receive("n1", boardChannel, "hello mesh")
	h.sim.Receive("n1", boardChannel, "/msg broken")
	h.drain(ctx)

	notes, _ := h.notes.ListBoard(ctx, boardID, 0)
	if len(notes) != 0 || h.deferred.Len() != 0 {
		t.Fatalf("expected nothing stored, got %d notes", len(notes))
	}
}

func TestMetadataRequiresAuthorMatch(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, parkedConfig())
	ctx := context.Background()
	h.sim.Receive("n1", boardChannel, "/msg [55,1,u9]body")
	h.drain(ctx)
	h.count(events.KindRefreshNotes)

	h.sim.Receive("n2", boardChannel, "/color [55]intruder,4")
	h.sim.Receive("n2", boardChannel, "/archive [55]intruder")
	h.drain(ctx)
	n, _ := h.notes.GetByLoraMsgID(ctx, "55")
	if n.BgColor != board.ColorFor(1) || n.Deleted {
		t.Fatalf("foreign author must not change note: %+v", n)
	}
	if h.count(events.KindRefreshNotes) != 0 {
		t.Fatalf("expected no refresh")
	}

	h.sim.Receive("n1", boardChannel, "/color [55]u9, 4")
	h.sim.Receive("n1", boardChannel, "/pin [55]u9")
	h.drain(ctx)
	n, _ = h.notes.GetByLoraMsgID(ctx, "55")
	if n.BgColor != board.ColorFor(4) || !n.IsPinnedNote {
		t.Fatalf("expected recolor and pin: %+v", n)
	}

	h.sim.Receive("n3", boardChannel, "/author [55]u10")
	h.sim.Receive("n3", boardChannel, "/archive [55]u10")
	h.drain(ctx)
	n, _ = h.notes.GetByLoraMsgID(ctx, "55")
	if n.AuthorKey != "u10" || !n.Deleted || n.IsPinnedNote {
		t.Fatalf("expected author rewrite then archive: %+v", n)
	}
}

func TestUserAckRecordsNode(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, parkedConfig())
	ctx := context.Background()
	h.sim.Receive("n1", boardChannel, "/msg [55,1,u9]body")
	h.drain(ctx)
	n, _ := h.notes.GetByLoraMsgID(ctx, "55")

	h.sim.Receive("!beef", boardChannel, "/ack 55")
	h.sim.Receive("!beef", boardChannel, "/ack 55")
	h.sim.Receive("!beef", boardChannel, "/ack 404")
	h.drain(ctx)

	acks, err := h.notes.ListAcks(ctx, n.NoteID)
	if err != nil {
		t.Fatalf("list acks: %v", err)
	}
	if len(acks) != 1 || acks[0].LoraNodeID != "lora-!beef" {
		t.Fatalf("unexpected acks: %+v", acks)
	}
	if got := h.count(events.KindAckReceived); got != 2 {
		t.Fatalf("expected 2 ack events, got %d", got)
	}
}

func TestDeferredAckIsTransmitted(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, Config{Ack: session.RetryPolicy{Attempts: 1}, Followup: parked})
	ctx := context.Background()

	p := h.sim.Receive("n1", boardChannel, "/msg [new,1,u1]hi")
	h.drain(ctx)

	want := "/ack " + p.ID
	deadline := time.Now().Add(2 * time.Second)
	for {
		for _, s := range h.sim.Sent() {
			if s.Text == want {
				if s.Channel != boardChannel || s.WantAck {
					t.Fatalf("unexpected ack frame: %+v", s)
				}
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %q, sent=%+v", want, h.sim.Sent())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	testlog.Start(t)
	r := New(Config{QueueSize: 1}, nil, nil, nil, nil)
	r.Enqueue(radio.Packet{ID: "1"})
	r.Enqueue(radio.Packet{ID: "2"})
	if len(r.frames) != 1 {
		t.Fatalf("expected one queued frame, got %d", len(r.frames))
	}
	if p := <-r.frames; p.ID != "1" {
		t.Fatalf("expected first frame kept, got %q", p.ID)
	}
}

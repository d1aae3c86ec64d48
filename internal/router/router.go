package router

import (
	"context"
	"errors"

	"github.com/danmuck/meshboard/internal/board"
	"github.com/danmuck/meshboard/internal/events"
	logs "github.com/danmuck/meshboard/internal/logging"
	"github.com/danmuck/meshboard/internal/observability"
	"github.com/danmuck/meshboard/internal/protocol"
	"github.com/danmuck/meshboard/internal/protocol/session"
	"github.com/danmuck/meshboard/internal/radio"
	"github.com/danmuck/meshboard/internal/store"
)

const DefaultQueueSize = 64

type Config struct {
	QueueSize int
	Ack       session.RetryPolicy
	Followup  session.RetryPolicy
	// LegacyFollowups sends /author and /color after each delivery for nodes
	// that only understand the short /msg form.
	LegacyFollowups bool
}

func DefaultConfig() Config {
	rel := session.DefaultConfig()
	return Config{
		QueueSize: DefaultQueueSize,
		Ack:       rel.Ack,
		Followup:  rel.Followup,
	}
}

// Link is the slice of link.Session the router needs.
type Link interface {
	ChannelName() string
	ChannelIndex() (int, bool)
	SendText(ctx context.Context, text string, wantAck bool) (string, error)
	ResolveDelivery(requestID string) (session.PendingDelivery, bool)
}

// Notes is the slice of the note store the router writes.
type Notes interface {
	GetNote(ctx context.Context, noteID string) (store.Note, error)
	GetByLoraMsgID(ctx context.Context, loraMsgID string) (store.Note, error)
	CreateRadioNote(ctx context.Context, in store.RadioNote) (store.Note, bool, error)
	ApplyRadioColor(ctx context.Context, loraMsgID, authorKey, bgColor string) (bool, error)
	ApplyRadioAuthor(ctx context.Context, loraMsgID, authorKey string) (bool, error)
	ApplyRadioArchive(ctx context.Context, loraMsgID, authorKey string) (bool, error)
	ApplyRadioPin(ctx context.Context, loraMsgID, authorKey string) (bool, error)
	MarkSent(ctx context.Context, noteID, loraMsgID string) (bool, error)
	RevertToLanOnly(ctx context.Context, noteID string) (bool, error)
	UpsertAck(ctx context.Context, noteID, loraNodeID string) (store.AckRecord, bool, error)
}

type Router struct {
	cfg      Config
	link     Link
	notes    Notes
	deferred *session.Deferred
	pub      events.Publisher
	frames   chan radio.Packet
}

func New(cfg Config, link Link, notes Notes, deferred *session.Deferred, pub events.Publisher) *Router {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if pub == nil {
		pub = events.Discard{}
	}
	return &Router{
		cfg:      cfg,
		link:     link,
		notes:    notes,
		deferred: deferred,
		pub:      pub,
		frames:   make(chan radio.Packet, cfg.QueueSize),
	}
}

// Enqueue hands a received frame to the router without blocking the radio
// callback. Frames are dropped when the queue is full.
func (r *Router) Enqueue(p radio.Packet) {
	select {
	case r.frames <- p:
	default:
		observability.RecordRadioReceived("dropped")
		logs.Warnf("router.Enqueue queue full, dropped frame id=%q", p.ID)
	}
}

// Run applies queued frames until ctx ends.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			logs.Infof("router.Run shutdown pending=%d", len(r.frames))
			return nil
		case p := <-r.frames:
			r.Handle(ctx, p)
		}
	}
}

// Handle applies one frame.
func (r *Router) Handle(ctx context.Context, p radio.Packet) {
	switch p.Kind {
	case radio.PacketRouting:
		r.handleRouting(ctx, p)
	case radio.PacketText:
		r.handleText(ctx, p)
	default:
		logs.Debugf("router.Handle ignored frame id=%q kind=%d", p.ID, p.Kind)
	}
}

func (r *Router) handleRouting(ctx context.Context, p radio.Packet) {
	pending, ok := r.link.ResolveDelivery(p.RequestID)
	if !ok {
		logs.Debugf("router.handleRouting request=%q not pending", p.RequestID)
		return
	}
	boardID := r.link.ChannelName()

	if !p.Delivered() {
		observability.RecordDelivery("nak")
		reverted, err := r.notes.RevertToLanOnly(ctx, pending.NoteID)
		if err != nil {
			logs.Errf("router.handleRouting revert note=%q err=%v", pending.NoteID, err)
			return
		}
		logs.Warnf("router.handleRouting nak note=%q request=%q reason=%q", pending.NoteID, p.RequestID, p.ErrorReason)
		if reverted {
			r.pub.Publish(events.Refresh(boardID))
		}
		return
	}

	observability.RecordDelivery("acked")
	marked, err := r.notes.MarkSent(ctx, pending.NoteID, p.RequestID)
	if err != nil {
		logs.Errf("router.handleRouting mark sent note=%q err=%v", pending.NoteID, err)
		return
	}
	if !marked {
		logs.Warnf("router.handleRouting note=%q no longer sending", pending.NoteID)
		return
	}
	n, err := r.notes.GetNote(ctx, pending.NoteID)
	if err != nil {
		logs.Errf("router.handleRouting reload note=%q err=%v", pending.NoteID, err)
		return
	}
	msgID := n.MsgID()
	logs.Infof("router.handleRouting delivered note=%q lora_msg_id=%q", n.NoteID, msgID)

	if n.IsPinnedNote && !n.Deleted {
		r.schedule(r.cfg.Followup, protocol.Pin(msgID, n.AuthorKey))
	}
	if r.cfg.LegacyFollowups {
		r.schedule(r.cfg.Followup, protocol.Author(msgID, pending.AuthorKey))
		r.schedule(r.cfg.Followup, protocol.Color(msgID, pending.AuthorKey, board.ColorIndex(pending.BgColor)))
	}
	r.pub.Publish(events.Refresh(boardID))
}

func (r *Router) handleText(ctx context.Context, p radio.Packet) {
	index, ok := r.link.ChannelIndex()
	if !ok || p.Channel != index {
		observability.RecordRadioReceived("other_channel")
		logs.Debugf("router.handleText skip id=%q channel=%d", p.ID, p.Channel)
		return
	}
	cmd, err := protocol.Decode(p.Text)
	if err != nil {
		observability.RecordRadioReceived("invalid")
		if errors.Is(err, protocol.ErrUnknownCommand) {
			logs.Debugf("router.handleText ignored id=%q from=%q", p.ID, p.FromID)
		} else {
			logs.Warnf("router.handleText id=%q from=%q text=%q err=%v", p.ID, p.FromID, p.Text, err)
		}
		return
	}
	observability.RecordRadioReceived(string(cmd.Kind))

	nodeKey := store.RadioAuthorPrefix + p.FromID
	var changed bool
	switch cmd.Kind {
	case protocol.KindMessage, protocol.KindReply:
		changed = r.applyNote(ctx, p, cmd, nodeKey)
	case protocol.KindColor:
		index, _ := cmd.ColorIndex()
		changed = r.apply("color", cmd)(r.notes.ApplyRadioColor(ctx, cmd.MsgID, cmd.AuthorKey, board.ColorFor(index)))
	case protocol.KindAuthor:
		changed = r.apply("author", cmd)(r.notes.ApplyRadioAuthor(ctx, cmd.MsgID, cmd.AuthorKey))
	case protocol.KindArchive:
		changed = r.apply("archive", cmd)(r.notes.ApplyRadioArchive(ctx, cmd.MsgID, cmd.AuthorKey))
	case protocol.KindPin:
		changed = r.apply("pin", cmd)(r.notes.ApplyRadioPin(ctx, cmd.MsgID, cmd.AuthorKey))
	case protocol.KindAck:
		r.applyAck(ctx, cmd, nodeKey)
	}
	if changed {
		r.pub.Publish(events.Refresh(r.link.ChannelName()))
	}
}

func (r *Router) applyNote(ctx context.Context, p radio.Packet, cmd protocol.Command, nodeKey string) bool {
	msgID := cmd.MsgID
	if cmd.IsNew() {
		msgID = p.ID
	}
	author := cmd.AuthorKey
	if author == "" {
		author = nodeKey
	}
	index, _ := cmd.ColorIndex()

	n, created, err := r.notes.CreateRadioNote(ctx, store.RadioNote{
		BoardID:         r.link.ChannelName(),
		LoraMsgID:       msgID,
		ParentLoraMsgID: cmd.ParentID,
		Body:            cmd.Body,
		BgColor:         board.ColorFor(index),
		AuthorKey:       author,
		LoraNodeID:      p.FromID,
	})
	if err != nil {
		logs.Errf("router.applyNote lora_msg_id=%q err=%v", msgID, err)
		return false
	}
	if created {
		logs.Infof("router.applyNote stored note=%q lora_msg_id=%q kind=%s legacy=%v", n.NoteID, msgID, cmd.Kind, cmd.Legacy)
	} else {
		logs.Debugf("router.applyNote duplicate lora_msg_id=%q", msgID)
	}
	r.schedule(r.cfg.Ack, protocol.Ack(msgID))
	return created
}

func (r *Router) applyAck(ctx context.Context, cmd protocol.Command, nodeKey string) {
	n, err := r.notes.GetByLoraMsgID(ctx, cmd.MsgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logs.Debugf("router.applyAck unknown lora_msg_id=%q from=%q", cmd.MsgID, nodeKey)
		} else {
			logs.Errf("router.applyAck lookup lora_msg_id=%q err=%v", cmd.MsgID, err)
		}
		return
	}
	if _, _, err := r.notes.UpsertAck(ctx, n.NoteID, nodeKey); err != nil {
		logs.Errf("router.applyAck note=%q node=%q err=%v", n.NoteID, nodeKey, err)
		return
	}
	r.pub.Publish(events.Ack(n.NoteID, nodeKey))
}

// apply logs the outcome of a metadata update and reports whether it changed a note.
func (r *Router) apply(op string, cmd protocol.Command) func(bool, error) bool {
	return func(ok bool, err error) bool {
		if err != nil {
			logs.Errf("router.apply %s lora_msg_id=%q err=%v", op, cmd.MsgID, err)
			return false
		}
		if !ok {
			logs.Debugf("router.apply %s lora_msg_id=%q author=%q no match", op, cmd.MsgID, cmd.AuthorKey)
		}
		return ok
	}
}

func (r *Router) schedule(policy session.RetryPolicy, cmd protocol.Command) {
	if r.deferred == nil {
		return
	}
	if err := board.DeferCommand(r.deferred, r.link, policy, cmd); err != nil {
		logs.Errf("router.schedule kind=%s lora_msg_id=%q err=%v", cmd.Kind, cmd.MsgID, err)
	}
}

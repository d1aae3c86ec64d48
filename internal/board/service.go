package board

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/meshboard/internal/events"
	logs "github.com/danmuck/meshboard/internal/logging"
	"github.com/danmuck/meshboard/internal/observability"
	"github.com/danmuck/meshboard/internal/protocol"
	"github.com/danmuck/meshboard/internal/protocol/session"
	"github.com/danmuck/meshboard/internal/store"
)

var (
	ErrLinkUnavailable = errors.New("board: radio link not ready")
	ErrBodyTooLong     = errors.New("board: note text exceeds radio payload")
	ErrInvalidHeader   = errors.New("board: author or parent id cannot be sent over radio")
)

// resendIDPlaceholder stands in for the longest network id a note may carry.
const resendIDPlaceholder = "4294967295"

const (
	DefaultMaxNoteShow         = 100
	DefaultMaxArchivedNoteShow = 100
)

type Config struct {
	MaxNoteShow         int
	MaxArchivedNoteShow int
	Followup            session.RetryPolicy
	PinReapplyDelay     time.Duration
	LegacyFollowups     bool
}

func DefaultConfig() Config {
	return Config{
		MaxNoteShow:         DefaultMaxNoteShow,
		MaxArchivedNoteShow: DefaultMaxArchivedNoteShow,
		Followup:            session.DefaultConfig().Followup,
		PinReapplyDelay:     5 * time.Second,
	}
}

// Link is the slice of link.Session the board needs.
type Link interface {
	Sender
	ChannelName() string
	Ready() bool
}

// Ack is one acknowledgement row as shown to users.
type Ack struct {
	store.AckRecord
	DisplayID string
}

type Service struct {
	cfg      Config
	notes    *store.Store
	link     Link
	deferred *session.Deferred
	pub      events.Publisher
}

func NewService(cfg Config, notes *store.Store, link Link, deferred *session.Deferred, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{cfg: cfg, notes: notes, link: link, deferred: deferred, pub: pub}
}

// ChannelName is the radio channel carrying the board.
func (s *Service) ChannelName() string {
	return s.link.ChannelName()
}

// CreateNote stores a LAN only note, or a reply when parentLoraMsgID is set.
func (s *Service) CreateNote(ctx context.Context, boardID, text, authorKey string, colorIndex int, parentLoraMsgID string) (store.Note, error) {
	text = strings.TrimSpace(text)
	parentLoraMsgID = strings.TrimSpace(parentLoraMsgID)
	draft := store.Note{
		Body:           text,
		BgColor:        ColorFor(colorIndex),
		AuthorKey:      authorKey,
		ReplyLoraMsgID: sql.NullString{String: parentLoraMsgID, Valid: parentLoraMsgID != ""},
	}
	if err := checkFits(draft); err != nil {
		return store.Note{}, err
	}
	n, err := s.notes.CreateLocalNote(ctx, store.LocalNote{
		BoardID:         boardID,
		Body:            text,
		BgColor:         draft.BgColor,
		AuthorKey:       authorKey,
		ParentLoraMsgID: parentLoraMsgID,
	})
	if err != nil {
		return store.Note{}, err
	}
	logs.Infof("board.Service.CreateNote note=%q board=%q parent=%q", n.NoteID, boardID, parentLoraMsgID)
	s.pub.Publish(events.Refresh(boardID))
	return n, nil
}

// EditNote rewrites the text and color of the author's LAN only note.
func (s *Service) EditNote(ctx context.Context, noteID, authorKey, text string, colorIndex int) (store.Note, error) {
	cur, err := s.notes.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	text = strings.TrimSpace(text)
	draft := cur
	draft.Body, draft.BgColor = text, ColorFor(colorIndex)
	if err := checkFits(draft); err != nil {
		return store.Note{}, err
	}
	n, err := s.notes.EditNote(ctx, noteID, authorKey, text, draft.BgColor)
	if err != nil {
		return store.Note{}, err
	}
	s.pub.Publish(events.Refresh(n.BoardID))
	return n, nil
}

// DeleteNote tombstones the author's LAN only note locally.
func (s *Service) DeleteNote(ctx context.Context, noteID, authorKey string) error {
	n, err := s.notes.GetNote(ctx, noteID)
	if err != nil {
		return err
	}
	if err := s.notes.DeleteNote(ctx, noteID, authorKey); err != nil {
		return err
	}
	s.pub.Publish(events.Refresh(n.BoardID))
	return nil
}

// ArchiveNote tombstones a published note; the scheduler propagates /archive.
func (s *Service) ArchiveNote(ctx context.Context, noteID, authorKey string, asAdmin bool) (store.Note, error) {
	n, err := s.notes.ArchiveNote(ctx, noteID, authorKey, asAdmin)
	if err != nil {
		return store.Note{}, err
	}
	logs.Infof("board.Service.ArchiveNote note=%q admin=%v", noteID, asAdmin)
	s.pub.Publish(events.Refresh(n.BoardID))
	return n, nil
}

// SetColor recolors a published note; the scheduler propagates /color.
func (s *Service) SetColor(ctx context.Context, noteID, authorKey string, colorIndex int, asAdmin bool) (store.Note, error) {
	n, err := s.notes.SetColor(ctx, noteID, authorKey, ColorFor(colorIndex), asAdmin)
	if err != nil {
		return store.Note{}, err
	}
	s.pub.Publish(events.Refresh(n.BoardID))
	return n, nil
}

// PinNote pins a root note. Published notes propagate /pin; LAN only notes
// propagate it once delivered.
func (s *Service) PinNote(ctx context.Context, noteID string) (store.Note, error) {
	n, err := s.notes.PinNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if n.MsgID() != "" {
		s.deferPin(n, 0)
	}
	logs.Infof("board.Service.PinNote note=%q lora_msg_id=%q", noteID, n.MsgID())
	s.pub.Publish(events.Refresh(n.BoardID))
	return n, nil
}

// ResendNote re-transmits a delivered note under its existing network id.
func (s *Service) ResendNote(ctx context.Context, noteID, authorKey string, asAdmin bool) (store.Note, error) {
	if !s.link.Ready() {
		return store.Note{}, ErrLinkUnavailable
	}
	n, err := s.notes.BeginResend(ctx, noteID, authorKey, asAdmin)
	if err != nil {
		return store.Note{}, err
	}
	msgID := n.MsgID()
	cmd := OutboundCommand(n, msgID)
	text, err := protocol.Encode(cmd)
	if err != nil {
		return store.Note{}, fmt.Errorf("board: encode resend: %w", err)
	}
	_, err = s.link.SendText(ctx, text, false)
	observability.RecordRadioSend(string(cmd.Kind), err)
	if err != nil {
		logs.Warnf("board.Service.ResendNote note=%q err=%v", noteID, err)
		return store.Note{}, fmt.Errorf("%w: %v", ErrLinkUnavailable, err)
	}
	logs.Infof("board.Service.ResendNote note=%q lora_msg_id=%q resent=%d", noteID, msgID, n.ResentCount)

	if s.cfg.LegacyFollowups {
		s.deferFollowup(protocol.Author(msgID, n.AuthorKey))
		s.deferFollowup(protocol.Color(msgID, n.AuthorKey, ColorIndex(n.BgColor)))
	}
	if n.IsPinnedNote {
		s.deferPin(n, s.cfg.PinReapplyDelay)
	}
	s.pub.Publish(events.Refresh(n.BoardID))
	return n, nil
}

// ListNotes returns the board as reply threads. The window always spans live
// and archived notes; tombstones are filtered after the parent chains resolve.
func (s *Service) ListNotes(ctx context.Context, boardID string, includeArchived bool) ([]Thread, error) {
	limit := s.cfg.MaxNoteShow + s.cfg.MaxArchivedNoteShow
	notes, err := s.notes.ListBoard(ctx, boardID, limit)
	if err != nil {
		return nil, err
	}
	return BuildTree(notes, includeArchived), nil
}

// ListAcks returns the nodes that acknowledged a note, newest first.
func (s *Service) ListAcks(ctx context.Context, noteID string) ([]Ack, error) {
	recs, err := s.notes.ListAcks(ctx, noteID)
	if err != nil {
		return nil, err
	}
	out := make([]Ack, 0, len(recs))
	for _, r := range recs {
		out = append(out, Ack{AckRecord: r, DisplayID: store.DisplayAuthor(r.LoraNodeID)})
	}
	return out, nil
}

func (s *Service) deferPin(n store.Note, delay time.Duration) {
	if s.deferred == nil {
		return
	}
	policy := s.cfg.Followup
	if delay > policy.Delay {
		policy.Delay = delay
	}
	if err := DeferCommand(s.deferred, s.link, policy, protocol.Pin(n.MsgID(), n.AuthorKey)); err != nil {
		logs.Errf("board.Service.deferPin note=%q err=%v", n.NoteID, err)
	}
}

func (s *Service) deferFollowup(cmd protocol.Command) {
	if s.deferred == nil {
		return
	}
	if err := DeferCommand(s.deferred, s.link, s.cfg.Followup, cmd); err != nil {
		logs.Errf("board.Service.deferFollowup kind=%s lora_msg_id=%q err=%v", cmd.Kind, cmd.MsgID, err)
	}
}

// checkFits rejects notes whose resend frame would not fit one radio payload.
func checkFits(n store.Note) error {
	if n.Body == "" {
		return store.ErrEmptyBody
	}
	_, err := protocol.Encode(OutboundCommand(n, resendIDPlaceholder))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, protocol.ErrPayloadTooLarge):
		return fmt.Errorf("%w: %v", ErrBodyTooLong, err)
	case errors.Is(err, protocol.ErrInvalidField):
		return fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	default:
		return err
	}
}

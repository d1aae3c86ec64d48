package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	logs "github.com/danmuck/meshboard/internal/logging"
)

// GetNote returns a note by local id, tombstoned or not.
func (s *Store) GetNote(ctx context.Context, noteID string) (Note, error) {
	n, ok, err := getNote(ctx, s.db, `note_id = ?`, noteID)
	if err != nil {
		return Note{}, err
	}
	if !ok {
		return Note{}, ErrNotFound
	}
	return n, nil
}

// GetByLoraMsgID returns the note carrying the network id.
func (s *Store) GetByLoraMsgID(ctx context.Context, loraMsgID string) (Note, error) {
	n, ok, err := getNote(ctx, s.db, `lora_msg_id = ?`, loraMsgID)
	if err != nil {
		return Note{}, err
	}
	if !ok {
		return Note{}, ErrNotFound
	}
	return n, nil
}

// CreateLocalNote inserts a web-originated note in LAN only state.
// A reply's parent must exist live on the same board.
func (s *Store) CreateLocalNote(ctx context.Context, in LocalNote) (Note, error) {
	if strings.TrimSpace(in.BoardID) == "" {
		return Note{}, ErrMissingBoard
	}
	if strings.TrimSpace(in.Body) == "" {
		return Note{}, ErrEmptyBody
	}
	now := s.nowMS()
	n := Note{
		NoteID:         uuid.NewString(),
		BoardID:        in.BoardID,
		Body:           in.Body,
		BgColor:        in.BgColor,
		Status:         StatusLanOnly,
		CreatedAt:      now,
		UpdatedAt:      now,
		AuthorKey:      in.AuthorKey,
		Rev:            1,
		ReplyLoraMsgID: nullString(in.ParentLoraMsgID),
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if n.ReplyLoraMsgID.Valid {
			_, ok, err := getNote(ctx, tx, `lora_msg_id = ? AND board_id = ? AND deleted = 0`, n.ReplyLoraMsgID.String, n.BoardID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrParentNotFound
			}
		}
		if err := insertNote(ctx, tx, n); err != nil {
			return err
		}
		return s.enforceCap(ctx, tx, n.BoardID, now)
	})
	if err != nil {
		return Note{}, err
	}
	logs.Debugf("store.CreateLocalNote note=%q board=%q parent=%q", n.NoteID, n.BoardID, n.ParentMsgID())
	return n, nil
}

// CreateRadioNote inserts a radio-originated note unless its network id is
// already known. created is false for duplicates, in which case the existing
// note is returned. Children waiting on this id as a temp parent are relinked.
func (s *Store) CreateRadioNote(ctx context.Context, in RadioNote) (n Note, created bool, err error) {
	if strings.TrimSpace(in.BoardID) == "" {
		return Note{}, false, ErrMissingBoard
	}
	if strings.TrimSpace(in.LoraMsgID) == "" {
		return Note{}, false, fmt.Errorf("store: radio note without network id")
	}
	now := s.nowMS()
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		existing, ok, err := getNote(ctx, tx, `lora_msg_id = ?`, in.LoraMsgID)
		if err != nil {
			return err
		}
		if ok {
			n = existing
			return nil
		}
		n = Note{
			NoteID:         uuid.NewString(),
			BoardID:        in.BoardID,
			Body:           in.Body,
			BgColor:        in.BgColor,
			Status:         StatusLoraReceived,
			CreatedAt:      now,
			UpdatedAt:      now,
			AuthorKey:      in.AuthorKey,
			Rev:            1,
			LoraMsgID:      nullString(in.LoraMsgID),
			ReplyLoraMsgID: nullString(in.ParentLoraMsgID),
			LoraNodeID:     nullString(in.LoraNodeID),
		}
		if n.ReplyLoraMsgID.Valid {
			_, known, err := getNote(ctx, tx, `lora_msg_id = ?`, n.ReplyLoraMsgID.String)
			if err != nil {
				return err
			}
			n.IsTempParentNote = !known
		}
		if err := insertNote(ctx, tx, n); err != nil {
			return err
		}
		if err := relinkTempChildren(ctx, tx, in.LoraMsgID); err != nil {
			return err
		}
		created = true
		return s.enforceCap(ctx, tx, n.BoardID, now)
	})
	if err != nil {
		return Note{}, false, err
	}
	if created {
		logs.Debugf("store.CreateRadioNote note=%q lora_msg_id=%q temp_parent=%v", n.NoteID, in.LoraMsgID, n.IsTempParentNote)
	}
	return n, created, nil
}

func insertNote(ctx context.Context, tx *sqlx.Tx, n Note) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO notes (`+noteColumns+`) VALUES (
		:note_id, :board_id, :body, :bg_color, :status, :created_at, :updated_at,
		:author_key, :rev, :deleted, :resent_count, :needs_lora_update, :lora_msg_id,
		:reply_lora_msg_id, :is_temp_parent_note, :is_pinned_note, :lora_node_id)`, n)
	if err != nil {
		return fmt.Errorf("store: insert note: %w", err)
	}
	return nil
}

func relinkTempChildren(ctx context.Context, tx *sqlx.Tx, loraMsgID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE notes SET is_temp_parent_note = 0
		WHERE reply_lora_msg_id = ? AND is_temp_parent_note = 1`, loraMsgID)
	if err != nil {
		return fmt.Errorf("store: relink children: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logs.Debugf("store.relinkTempChildren parent=%q relinked=%d", loraMsgID, n)
	}
	return nil
}

// enforceCap tombstones the oldest live notes beyond maxNotes on board.
func (s *Store) enforceCap(ctx context.Context, tx *sqlx.Tx, boardID string, now int64) error {
	var live int
	if err := tx.GetContext(ctx, &live, `SELECT COUNT(*) FROM notes WHERE board_id = ? AND deleted = 0`, boardID); err != nil {
		return fmt.Errorf("store: count live: %w", err)
	}
	over := live - s.maxNotes
	if over <= 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE notes SET deleted = 1, is_pinned_note = 0, updated_at = ?
		WHERE note_id IN (
			SELECT note_id FROM notes WHERE board_id = ? AND deleted = 0
			ORDER BY created_at ASC, rowid ASC LIMIT ?
		)`, now, boardID, over)
	if err != nil {
		return fmt.Errorf("store: enforce cap: %w", err)
	}
	logs.Infof("store.enforceCap board=%q tombstoned=%d", boardID, over)
	return nil
}

// loadOwned fetches a live note and checks authorship unless asAdmin.
func loadOwned(ctx context.Context, tx *sqlx.Tx, noteID, authorKey string, asAdmin bool) (Note, error) {
	n, ok, err := getNote(ctx, tx, `note_id = ?`, noteID)
	if err != nil {
		return Note{}, err
	}
	if !ok || n.Deleted {
		return Note{}, ErrNotFound
	}
	if !asAdmin && n.AuthorKey != authorKey {
		return Note{}, ErrNotAuthor
	}
	return n, nil
}

// EditNote replaces body and color of the author's LAN only note.
func (s *Store) EditNote(ctx context.Context, noteID, authorKey, body, bgColor string) (Note, error) {
	if strings.TrimSpace(body) == "" {
		return Note{}, ErrEmptyBody
	}
	var out Note
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		n, err := loadOwned(ctx, tx, noteID, authorKey, false)
		if err != nil {
			return err
		}
		if n.Status != StatusLanOnly {
			return ErrNotEditable
		}
		now := s.nowMS()
		res, err := tx.ExecContext(ctx, `UPDATE notes SET body = ?, bg_color = ?, rev = rev + 1, updated_at = ?
			WHERE note_id = ? AND status = ?`, body, bgColor, now, noteID, StatusLanOnly)
		if err != nil {
			return fmt.Errorf("store: edit: %w", err)
		}
		if ok, _ := affected(res); !ok {
			return ErrNotEditable
		}
		n.Body, n.BgColor, n.Rev, n.UpdatedAt = body, bgColor, n.Rev+1, now
		out = n
		return nil
	})
	return out, err
}

// DeleteNote tombstones the author's LAN only note without radio propagation.
func (s *Store) DeleteNote(ctx context.Context, noteID, authorKey string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		n, err := loadOwned(ctx, tx, noteID, authorKey, false)
		if err != nil {
			return err
		}
		if n.Status != StatusLanOnly {
			return ErrNotEditable
		}
		res, err := tx.ExecContext(ctx, `UPDATE notes SET deleted = 1, is_pinned_note = 0, updated_at = ?
			WHERE note_id = ? AND status = ?`, s.nowMS(), noteID, StatusLanOnly)
		if err != nil {
			return fmt.Errorf("store: delete: %w", err)
		}
		if ok, _ := affected(res); !ok {
			return ErrNotEditable
		}
		return nil
	})
}

// ArchiveNote tombstones a published note and flags it for radio propagation.
func (s *Store) ArchiveNote(ctx context.Context, noteID, authorKey string, asAdmin bool) (Note, error) {
	var out Note
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		n, err := loadOwned(ctx, tx, noteID, authorKey, asAdmin)
		if err != nil {
			return err
		}
		if n.Status == StatusLanOnly {
			return ErrNotPublished
		}
		now := s.nowMS()
		if _, err := tx.ExecContext(ctx, `UPDATE notes SET deleted = 1, is_pinned_note = 0, needs_lora_update = 1, updated_at = ?
			WHERE note_id = ?`, now, noteID); err != nil {
			return fmt.Errorf("store: archive: %w", err)
		}
		n.Deleted, n.IsPinnedNote, n.NeedsLoraUpdate, n.UpdatedAt = true, false, true, now
		out = n
		return nil
	})
	return out, err
}

// SetColor recolors a published note and flags it for radio propagation.
func (s *Store) SetColor(ctx context.Context, noteID, authorKey, bgColor string, asAdmin bool) (Note, error) {
	var out Note
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		n, err := loadOwned(ctx, tx, noteID, authorKey, asAdmin)
		if err != nil {
			return err
		}
		if n.Status == StatusLanOnly {
			return ErrNotPublished
		}
		now := s.nowMS()
		if _, err := tx.ExecContext(ctx, `UPDATE notes SET bg_color = ?, rev = rev + 1, needs_lora_update = 1, updated_at = ?
			WHERE note_id = ?`, bgColor, now, noteID); err != nil {
			return fmt.Errorf("store: set color: %w", err)
		}
		n.BgColor, n.Rev, n.NeedsLoraUpdate, n.UpdatedAt = bgColor, n.Rev+1, true, now
		out = n
		return nil
	})
	return out, err
}

// PinNote pins a live root note, unpinning any other note on its board.
func (s *Store) PinNote(ctx context.Context, noteID string) (Note, error) {
	var out Note
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		n, err := loadOwned(ctx, tx, noteID, "", true)
		if err != nil {
			return err
		}
		if n.IsReply() {
			return ErrNotPinnable
		}
		if err := pinLocked(ctx, tx, n, s.nowMS()); err != nil {
			return err
		}
		n.IsPinnedNote = true
		out = n
		return nil
	})
	return out, err
}

func pinLocked(ctx context.Context, tx *sqlx.Tx, n Note, now int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE notes SET is_pinned_note = 0, updated_at = ?
		WHERE board_id = ? AND is_pinned_note = 1 AND note_id <> ?`, now, n.BoardID, n.NoteID); err != nil {
		return fmt.Errorf("store: clear pins: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE notes SET is_pinned_note = 1, updated_at = ? WHERE note_id = ?`, now, n.NoteID); err != nil {
		return fmt.Errorf("store: pin: %w", err)
	}
	return nil
}

// BeginResend bumps resentCount of a LoRa sent note and returns it.
func (s *Store) BeginResend(ctx context.Context, noteID, authorKey string, asAdmin bool) (Note, error) {
	var out Note
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		n, err := loadOwned(ctx, tx, noteID, authorKey, asAdmin)
		if err != nil {
			return err
		}
		if n.Status != StatusLoraSent || !n.LoraMsgID.Valid {
			return ErrNotResendable
		}
		now := s.nowMS()
		if _, err := tx.ExecContext(ctx, `UPDATE notes SET resent_count = resent_count + 1, updated_at = ?
			WHERE note_id = ?`, now, noteID); err != nil {
			return fmt.Errorf("store: resend: %w", err)
		}
		n.ResentCount++
		n.UpdatedAt = now
		out = n
		return nil
	})
	return out, err
}

// ApplyRadioColor recolors the note with loraMsgID when authorKey matches.
func (s *Store) ApplyRadioColor(ctx context.Context, loraMsgID, authorKey, bgColor string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET bg_color = ?, rev = rev + 1, updated_at = ?
		WHERE lora_msg_id = ? AND author_key = ?`, bgColor, s.nowMS(), loraMsgID, authorKey)
	if err != nil {
		return false, fmt.Errorf("store: radio color: %w", err)
	}
	return affected(res)
}

// ApplyRadioAuthor overwrites the author of the note with loraMsgID.
func (s *Store) ApplyRadioAuthor(ctx context.Context, loraMsgID, authorKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET author_key = ?, rev = rev + 1, updated_at = ?
		WHERE lora_msg_id = ? AND author_key <> ?`, authorKey, s.nowMS(), loraMsgID, authorKey)
	if err != nil {
		return false, fmt.Errorf("store: radio author: %w", err)
	}
	return affected(res)
}

// ApplyRadioArchive tombstones the note with loraMsgID when authorKey matches.
func (s *Store) ApplyRadioArchive(ctx context.Context, loraMsgID, authorKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET deleted = 1, is_pinned_note = 0, updated_at = ?
		WHERE lora_msg_id = ? AND author_key = ? AND deleted = 0`, s.nowMS(), loraMsgID, authorKey)
	if err != nil {
		return false, fmt.Errorf("store: radio archive: %w", err)
	}
	return affected(res)
}

// ApplyRadioPin pins the live root note with loraMsgID when authorKey matches.
func (s *Store) ApplyRadioPin(ctx context.Context, loraMsgID, authorKey string) (bool, error) {
	pinned := false
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		n, ok, err := getNote(ctx, tx, `lora_msg_id = ? AND author_key = ? AND deleted = 0`, loraMsgID, authorKey)
		if err != nil || !ok {
			return err
		}
		if n.IsReply() || n.IsPinnedNote {
			return nil
		}
		if err := pinLocked(ctx, tx, n, s.nowMS()); err != nil {
			return err
		}
		pinned = true
		return nil
	})
	return pinned, err
}

// NextPending returns the oldest live note waiting for radio delivery.
func (s *Store) NextPending(ctx context.Context, boardID string) (Note, bool, error) {
	return getNote(ctx, s.db, `board_id = ? AND status IN (?, ?) AND deleted = 0
		ORDER BY created_at ASC, rowid ASC`, boardID, StatusLanOnly, StatusSending)
}

// TakeNeedsUpdate returns the oldest note flagged for metadata propagation
// and clears the flag in the same transaction.
func (s *Store) TakeNeedsUpdate(ctx context.Context, boardID string) (Note, bool, error) {
	var (
		out Note
		ok  bool
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		n, found, err := getNote(ctx, tx, `board_id = ? AND needs_lora_update = 1 ORDER BY updated_at ASC, rowid ASC`, boardID)
		if err != nil || !found {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE notes SET needs_lora_update = 0 WHERE note_id = ?`, n.NoteID); err != nil {
			return fmt.Errorf("store: clear needs update: %w", err)
		}
		n.NeedsLoraUpdate = false
		out, ok = n, true
		return nil
	})
	return out, ok, err
}

// MarkSending moves a queued note to Sending.
func (s *Store) MarkSending(ctx context.Context, noteID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET status = ?, updated_at = ?
		WHERE note_id = ? AND status IN (?, ?)`, StatusSending, s.nowMS(), noteID, StatusLanOnly, StatusSending)
	if err != nil {
		return false, fmt.Errorf("store: mark sending: %w", err)
	}
	return affected(res)
}

// MarkSent records delivery: Sending -> LoRa sent and the first network id.
func (s *Store) MarkSent(ctx context.Context, noteID, loraMsgID string) (bool, error) {
	ok := false
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE notes SET status = ?, lora_msg_id = COALESCE(lora_msg_id, ?), updated_at = ?
			WHERE note_id = ? AND status = ?`, StatusLoraSent, loraMsgID, s.nowMS(), noteID, StatusSending)
		if err != nil {
			return fmt.Errorf("store: mark sent: %w", err)
		}
		if ok, err = affected(res); err != nil || !ok {
			return err
		}
		return relinkTempChildren(ctx, tx, loraMsgID)
	})
	return ok, err
}

// RevertToLanOnly puts a Sending note back in the queue.
func (s *Store) RevertToLanOnly(ctx context.Context, noteID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET status = ?, updated_at = ?
		WHERE note_id = ? AND status = ?`, StatusLanOnly, s.nowMS(), noteID, StatusSending)
	if err != nil {
		return false, fmt.Errorf("store: revert: %w", err)
	}
	return affected(res)
}

// ResetSending reverts every Sending note; pending deliveries do not survive a restart.
func (s *Store) ResetSending(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET status = ?, updated_at = ? WHERE status = ?`,
		StatusLanOnly, s.nowMS(), StatusSending)
	if err != nil {
		return 0, fmt.Errorf("store: reset sending: %w", err)
	}
	return res.RowsAffected()
}

// ListBoard returns up to limit notes of board, newest first, tombstones included.
func (s *Store) ListBoard(ctx context.Context, boardID string, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = -1
	}
	var out []Note
	err := s.db.SelectContext(ctx, &out, `SELECT `+noteColumns+` FROM notes
		WHERE board_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, boardID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list board: %w", err)
	}
	return out, nil
}

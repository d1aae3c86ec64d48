package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// UpsertAck records that loraNodeID has seen noteID. A repeat only refreshes updatedAt.
func (s *Store) UpsertAck(ctx context.Context, noteID, loraNodeID string) (rec AckRecord, created bool, err error) {
	now := s.nowMS()
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &rec, `SELECT ack_id, note_id, lora_node_id, created_at, updated_at
			FROM ack_records WHERE note_id = ? AND lora_node_id = ?`, noteID, loraNodeID)
		if err == nil {
			if _, err := tx.ExecContext(ctx, `UPDATE ack_records SET updated_at = ? WHERE ack_id = ?`, now, rec.AckID); err != nil {
				return fmt.Errorf("store: touch ack: %w", err)
			}
			rec.UpdatedAt = now
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: select ack: %w", err)
		}
		rec = AckRecord{
			AckID:      uuid.NewString(),
			NoteID:     noteID,
			LoraNodeID: loraNodeID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO ack_records (ack_id, note_id, lora_node_id, created_at, updated_at)
			VALUES (:ack_id, :note_id, :lora_node_id, :created_at, :updated_at)`, rec); err != nil {
			return fmt.Errorf("store: insert ack: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return AckRecord{}, false, err
	}
	return rec, created, nil
}

// ListAcks returns the ack records of a note, newest first.
func (s *Store) ListAcks(ctx context.Context, noteID string) ([]AckRecord, error) {
	var out []AckRecord
	err := s.db.SelectContext(ctx, &out, `SELECT ack_id, note_id, lora_node_id, created_at, updated_at
		FROM ack_records WHERE note_id = ? ORDER BY created_at DESC`, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: list acks: %w", err)
	}
	return out, nil
}

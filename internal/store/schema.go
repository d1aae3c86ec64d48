package store

var schema = []string{
	`CREATE TABLE IF NOT EXISTS notes (
		note_id TEXT PRIMARY KEY,
		board_id TEXT NOT NULL,
		body TEXT NOT NULL,
		bg_color TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		author_key TEXT NOT NULL DEFAULT '',
		rev INTEGER NOT NULL DEFAULT 1,
		deleted INTEGER NOT NULL DEFAULT 0,
		resent_count INTEGER NOT NULL DEFAULT 0,
		needs_lora_update INTEGER NOT NULL DEFAULT 0,
		lora_msg_id TEXT,
		reply_lora_msg_id TEXT,
		is_temp_parent_note INTEGER NOT NULL DEFAULT 0,
		is_pinned_note INTEGER NOT NULL DEFAULT 0,
		lora_node_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_board_id ON notes(board_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_deleted ON notes(deleted)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_reply ON notes(reply_lora_msg_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_notes_lora_msg_id ON notes(lora_msg_id) WHERE lora_msg_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_notes_one_pin ON notes(board_id) WHERE is_pinned_note = 1 AND deleted = 0`,
	`CREATE TABLE IF NOT EXISTS ack_records (
		ack_id TEXT PRIMARY KEY,
		note_id TEXT NOT NULL,
		lora_node_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(note_id, lora_node_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ack_note_id ON ack_records(note_id)`,
}

const noteColumns = `note_id, board_id, body, bg_color, status, created_at, updated_at,
	author_key, rev, deleted, resent_count, needs_lora_update, lora_msg_id,
	reply_lora_msg_id, is_temp_parent_note, is_pinned_note, lora_node_id`

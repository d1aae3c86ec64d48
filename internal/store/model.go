package store

import (
	"database/sql"
	"strings"
)

// Status is the radio lifecycle of a note.
type Status string

const (
	StatusLanOnly      Status = "LAN only"
	StatusSending      Status = "Sending"
	StatusLoraSent     Status = "LoRa sent"
	StatusLoraReceived Status = "LoRa received"
)

const (
	RadioAuthorPrefix = "lora-"
	WebAuthorPrefix   = "user-"
)

// Note is one persisted board entry.
type Note struct {
	NoteID           string         `db:"note_id"`
	BoardID          string         `db:"board_id"`
	Body             string         `db:"body"`
	BgColor          string         `db:"bg_color"`
	Status           Status         `db:"status"`
	CreatedAt        int64          `db:"created_at"`
	UpdatedAt        int64          `db:"updated_at"`
	AuthorKey        string         `db:"author_key"`
	Rev              int            `db:"rev"`
	Deleted          bool           `db:"deleted"`
	ResentCount      int            `db:"resent_count"`
	NeedsLoraUpdate  bool           `db:"needs_lora_update"`
	LoraMsgID        sql.NullString `db:"lora_msg_id"`
	ReplyLoraMsgID   sql.NullString `db:"reply_lora_msg_id"`
	IsTempParentNote bool           `db:"is_temp_parent_note"`
	IsPinnedNote     bool           `db:"is_pinned_note"`
	LoraNodeID       sql.NullString `db:"lora_node_id"`
}

// MsgID returns the network id or "" when the note never left the LAN.
func (n Note) MsgID() string {
	if !n.LoraMsgID.Valid {
		return ""
	}
	return n.LoraMsgID.String
}

// ParentMsgID returns the parent network id or "" for top-level notes.
func (n Note) ParentMsgID() string {
	if !n.ReplyLoraMsgID.Valid {
		return ""
	}
	return n.ReplyLoraMsgID.String
}

func (n Note) IsReply() bool {
	return n.ParentMsgID() != ""
}

func (n Note) FromRadio() bool {
	return strings.HasPrefix(n.AuthorKey, RadioAuthorPrefix)
}

// AckRecord notes that a radio node has seen a note.
type AckRecord struct {
	AckID      string `db:"ack_id"`
	NoteID     string `db:"note_id"`
	LoraNodeID string `db:"lora_node_id"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

// LocalNote is the input of a web-originated note.
type LocalNote struct {
	BoardID         string
	Body            string
	BgColor         string
	AuthorKey       string
	ParentLoraMsgID string
}

// RadioNote is the input of a radio-originated note.
type RadioNote struct {
	BoardID         string
	LoraMsgID       string
	ParentLoraMsgID string
	Body            string
	BgColor         string
	AuthorKey       string
	LoraNodeID      string
}

// DisplayAuthor renders an author key the way the board shows it.
func DisplayAuthor(authorKey string) string {
	switch {
	case strings.HasPrefix(authorKey, RadioAuthorPrefix):
		raw := strings.TrimPrefix(authorKey, RadioAuthorPrefix)
		if len(raw) > 4 {
			return "LoRa-" + raw[len(raw)-4:]
		}
		return raw
	case strings.HasPrefix(authorKey, WebAuthorPrefix):
		return "WebUser"
	default:
		return authorKey
	}
}

func nullString(v string) sql.NullString {
	if strings.TrimSpace(v) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

package protocol

import "strconv"

// Kind names one board command.
type Kind string

const (
	KindMessage Kind = "msg"
	KindReply   Kind = "reply"
	KindColor   Kind = "color"
	KindAuthor  Kind = "author"
	KindArchive Kind = "archive"
	KindPin     Kind = "pin"
	KindAck     Kind = "ack"
)

// NewID marks a message/reply whose network id is not known to the sender yet.
const NewID = "new"

// MaxPayloadBytes is the usable text payload of one radio frame.
const MaxPayloadBytes = 228

// Command is one decoded (or to-be-encoded) board command.
type Command struct {
	Kind      Kind
	MsgID     string
	ParentID  string
	ColorID   string
	AuthorKey string
	Body      string

	// Legacy is set by Decode when the frame used the one-field header.
	Legacy bool
}

// IsNew reports whether a message/reply carries no network id.
func (c Command) IsNew() bool {
	return c.MsgID == NewID
}

// ColorIndex parses ColorID; ok is false for empty or non-numeric values.
func (c Command) ColorIndex() (int, bool) {
	if c.ColorID == "" {
		return 0, false
	}
	v, err := strconv.Atoi(c.ColorID)
	if err != nil {
		return 0, false
	}
	return v, true
}

func NewMessage(colorID int, authorKey, body string) Command {
	return Command{Kind: KindMessage, MsgID: NewID, ColorID: strconv.Itoa(colorID), AuthorKey: authorKey, Body: body}
}

func ResendMessage(loraMsgID string, colorID int, authorKey, body string) Command {
	return Command{Kind: KindMessage, MsgID: loraMsgID, ColorID: strconv.Itoa(colorID), AuthorKey: authorKey, Body: body}
}

func NewReply(parentID string, colorID int, authorKey, body string) Command {
	return Command{Kind: KindReply, MsgID: NewID, ParentID: parentID, ColorID: strconv.Itoa(colorID), AuthorKey: authorKey, Body: body}
}

func ResendReply(loraMsgID, parentID string, colorID int, authorKey, body string) Command {
	return Command{Kind: KindReply, MsgID: loraMsgID, ParentID: parentID, ColorID: strconv.Itoa(colorID), AuthorKey: authorKey, Body: body}
}

func Color(loraMsgID, authorKey string, colorID int) Command {
	return Command{Kind: KindColor, MsgID: loraMsgID, AuthorKey: authorKey, ColorID: strconv.Itoa(colorID)}
}

func Author(loraMsgID, authorKey string) Command {
	return Command{Kind: KindAuthor, MsgID: loraMsgID, AuthorKey: authorKey}
}

func Archive(loraMsgID, authorKey string) Command {
	return Command{Kind: KindArchive, MsgID: loraMsgID, AuthorKey: authorKey}
}

func Pin(loraMsgID, authorKey string) Command {
	return Command{Kind: KindPin, MsgID: loraMsgID, AuthorKey: authorKey}
}

func Ack(loraMsgID string) Command {
	return Command{Kind: KindAck, MsgID: loraMsgID}
}

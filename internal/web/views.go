package web

import (
	"github.com/danmuck/meshboard/internal/board"
	"github.com/danmuck/meshboard/internal/events"
	"github.com/danmuck/meshboard/internal/link"
	"github.com/danmuck/meshboard/internal/store"
)

type noteView struct {
	NoteID             string     `json:"noteId"`
	BoardID            string     `json:"boardId"`
	Text               string     `json:"text"`
	BgColor            string     `json:"bgColor"`
	Status             string     `json:"status"`
	Timestamp          int64      `json:"timestamp"`
	UpdatedAt          int64      `json:"updatedAt"`
	UserID             string     `json:"userId"`
	Sender             string     `json:"sender"`
	LoraSuccess        bool       `json:"loraSuccess"`
	Source             string     `json:"source"`
	Rev                int        `json:"rev"`
	Archived           bool       `json:"archived"`
	ResentCount        int        `json:"resentCount"`
	LoraMessageID      *string    `json:"loraMessageId"`
	ReplyLoraMessageID *string    `json:"replyLoraMessageId"`
	IsTempParentNote   bool       `json:"isTempParentNote"`
	IsPinnedNote       bool       `json:"isPinnedNote"`
	ReplyNotes         []noteView `json:"replyNotes,omitempty"`
}

func viewNote(n store.Note) noteView {
	source := "local"
	if n.FromRadio() {
		source = "lora"
	}
	return noteView{
		NoteID:             n.NoteID,
		BoardID:            n.BoardID,
		Text:               n.Body,
		BgColor:            n.BgColor,
		Status:             string(n.Status),
		Timestamp:          n.CreatedAt,
		UpdatedAt:          n.UpdatedAt,
		UserID:             n.AuthorKey,
		Sender:             store.DisplayAuthor(n.AuthorKey),
		LoraSuccess:        n.Status == store.StatusLoraSent,
		Source:             source,
		Rev:                n.Rev,
		Archived:           n.Deleted,
		ResentCount:        n.ResentCount,
		LoraMessageID:      optional(n.MsgID()),
		ReplyLoraMessageID: optional(n.ParentMsgID()),
		IsTempParentNote:   n.IsTempParentNote,
		IsPinnedNote:       n.IsPinnedNote,
	}
}

func viewThreads(threads []board.Thread) []noteView {
	out := make([]noteView, 0, len(threads))
	for _, t := range threads {
		v := viewNote(t.Note)
		v.ReplyNotes = make([]noteView, 0, len(t.Replies))
		for _, r := range t.Replies {
			v.ReplyNotes = append(v.ReplyNotes, viewNote(r))
		}
		out = append(out, v)
	}
	return out
}

type ackView struct {
	AckID      string `json:"ackId"`
	LoraNodeID string `json:"loraNodeId"`
	DisplayID  string `json:"displayId"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

func viewAcks(acks []board.Ack) []ackView {
	out := make([]ackView, 0, len(acks))
	for _, a := range acks {
		out = append(out, ackView{
			AckID:      a.AckID,
			LoraNodeID: a.LoraNodeID,
			DisplayID:  a.DisplayID,
			CreatedAt:  a.CreatedAt,
			UpdatedAt:  a.UpdatedAt,
		})
	}
	return out
}

func statusView(st link.Status) events.LinkStatus {
	return events.LinkStatus{
		Online:           st.Online,
		ChannelValidated: st.ChannelValidated,
		ErrorMessage:     st.ErrorMessage,
		PowerIssue:       st.PowerIssue,
		State:            string(st.State),
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

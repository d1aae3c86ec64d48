package events

import (
	"sync"

	logs "github.com/danmuck/meshboard/internal/logging"
)

// Kind names one event on the stream.
type Kind string

const (
	KindLoraStatus   Kind = "lora_status"
	KindRefreshNotes Kind = "refresh_notes"
	KindAckReceived  Kind = "ack_received"
	KindLinkFailure  Kind = "link_failure"
)

// Event is one message on the stream.
type Event struct {
	Kind Kind `json:"event"`
	Data any  `json:"data"`
}

// LinkStatus is the payload of lora_status.
type LinkStatus struct {
	Online           bool   `json:"online"`
	ChannelValidated bool   `json:"channel_validated"`
	ErrorMessage     string `json:"error_message,omitempty"`
	PowerIssue       bool   `json:"power_issue"`
	State            string `json:"state"`
}

type RefreshNotes struct {
	BoardID string `json:"board_id"`
}

type AckReceived struct {
	NoteID     string `json:"note_id"`
	LoraNodeID string `json:"lora_node_id"`
}

type LinkFailure struct {
	Cause string `json:"cause"`
}

func Status(s LinkStatus) Event { return Event{Kind: KindLoraStatus, Data: s} }

func Refresh(boardID string) Event {
	return Event{Kind: KindRefreshNotes, Data: RefreshNotes{BoardID: boardID}}
}

func Ack(noteID, loraNodeID string) Event {
	return Event{Kind: KindAckReceived, Data: AckReceived{NoteID: noteID, LoraNodeID: loraNodeID}}
}

func Failure(cause string) Event {
	return Event{Kind: KindLinkFailure, Data: LinkFailure{Cause: cause}}
}

// Publisher accepts events.
type Publisher interface {
	Publish(ev Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

const defaultBuffer = 32

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a receive channel and its cancel func. Cancel closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logs.Warnf("events.Bus.Publish kind=%s dropped slow subscriber", ev.Kind)
		}
	}
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

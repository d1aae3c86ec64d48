package session

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrInFlight         = errors.New("session: delivery already in flight")
	ErrMissingRequestID = errors.New("session: missing request id")
)

// PendingDelivery tracks one radio send awaiting its delivery acknowledgement.
type PendingDelivery struct {
	RequestID string
	NoteID    string
	AuthorKey string
	BgColor   string
	SentAt    time.Time
}

// DeliveryOutbox stores pending deliveries by radio request id.
// At most one entry exists at any time.
type DeliveryOutbox struct {
	mu    sync.RWMutex
	items map[string]PendingDelivery
}

func NewDeliveryOutbox() *DeliveryOutbox {
	return &DeliveryOutbox{
		items: make(map[string]PendingDelivery),
	}
}

// Begin registers item unless another delivery is outstanding.
func (o *DeliveryOutbox) Begin(item PendingDelivery) error {
	key := strings.TrimSpace(item.RequestID)
	if key == "" {
		return ErrMissingRequestID
	}
	item.RequestID = key
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) > 0 {
		return ErrInFlight
	}
	o.items[key] = item
	return nil
}

// Resolve removes and returns the delivery for requestID.
func (o *DeliveryOutbox) Resolve(requestID string) (PendingDelivery, bool) {
	key := strings.TrimSpace(requestID)
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[key]
	if !ok {
		return PendingDelivery{}, false
	}
	delete(o.items, key)
	return item, true
}

// Expire removes and returns deliveries sent more than timeout before now.
func (o *DeliveryOutbox) Expire(now time.Time, timeout time.Duration) []PendingDelivery {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []PendingDelivery
	for key, item := range o.items {
		if now.Sub(item.SentAt) > timeout {
			out = append(out, item)
			delete(o.items, key)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestID < out[j].RequestID
	})
	return out
}

func (o *DeliveryOutbox) InFlight() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items) > 0
}

func (o *DeliveryOutbox) List() []PendingDelivery {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingDelivery, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestID < out[j].RequestID
	})
	return out
}

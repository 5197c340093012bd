package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of row change carried by the feed.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Change is one row-level event on a store table, the unit every realtime
// subscriber receives: {eventType, newRow, oldRow}.
type Change struct {
	EventID   uuid.UUID       `json:"event_id"`
	Table     string          `json:"table"`
	Action    Action          `json:"action"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Origin    string          `json:"origin,omitempty"`
}

// NewChange builds a change event, marshaling the row payloads.
func NewChange(table string, action Action, newRow, oldRow any) (Change, error) {
	if strings.TrimSpace(table) == "" {
		return Change{}, fmt.Errorf("events: table is required")
	}
	change := Change{
		EventID:   uuid.New(),
		Table:     table,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
	if newRow != nil {
		data, err := json.Marshal(newRow)
		if err != nil {
			return Change{}, fmt.Errorf("events: marshal new row: %w", err)
		}
		change.New = data
	}
	if oldRow != nil {
		data, err := json.Marshal(oldRow)
		if err != nil {
			return Change{}, fmt.Errorf("events: marshal old row: %w", err)
		}
		change.Old = data
	}
	return change, nil
}

// Publisher delivers change events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Hub fans change events out to in-process subscribers. Slow subscribers
// drop events rather than block store writers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Change
	nextID int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Change)}
}

// Subscribe registers a subscriber channel. The returned cancel func must be
// called to release it.
func (h *Hub) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Change, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the change to every subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, change Change) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- change:
		default:
			// Subscriber buffer full; it will resync from the store.
		}
	}
	return nil
}

// SubscriberCount reports active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

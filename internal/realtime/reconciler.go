package realtime

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/evermore-ai/concierge/internal/conversation"
	"github.com/evermore-ai/concierge/internal/events"
)

// ConversationRow is the wire form of one conversation in a live list.
// UpdatedAt stays a string: ISO-8601 timestamps order correctly under plain
// string comparison and survive round-trips unchanged.
type ConversationRow struct {
	ID           string `json:"id"`
	UserType     string `json:"user_type"`
	Status       string `json:"status"`
	LastMessage  string `json:"last_message"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

// Reconciler merges inbound change events into a held conversation list.
// It is idempotent under duplicate delivery and commutes for events on
// disjoint ids: the in-memory list is a cache of the store, never the truth.
type Reconciler struct {
	mu         sync.Mutex
	activeOnly bool
	rows       []ConversationRow
}

// NewReconciler creates a reconciler. With activeOnly set, only rows whose
// status is still live (anything not done) are held, matching the live-chat
// queue view.
func NewReconciler(activeOnly bool) *Reconciler {
	return &Reconciler{activeOnly: activeOnly}
}

// Seed replaces the held list with an authoritative snapshot.
func (r *Reconciler) Seed(rows []ConversationRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = r.rows[:0]
	for _, row := range rows {
		if r.matches(row) {
			r.rows = append(r.rows, row)
		}
	}
	r.resort()
}

// ApplyChange merges one feed event. Events for other tables are ignored.
func (r *Reconciler) ApplyChange(change events.Change) {
	if change.Table != "conversations" {
		return
	}
	newRow := decodeRow(change.New)
	oldRow := decodeRow(change.Old)
	r.Apply(change.Action, newRow, oldRow)
}

// Apply merges a single insert/update/delete into the held list.
func (r *Reconciler) Apply(action events.Action, newRow, oldRow *ConversationRow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch action {
	case events.ActionInsert:
		if newRow == nil || !r.matches(*newRow) {
			return
		}
		r.upsert(*newRow)
	case events.ActionUpdate:
		if newRow == nil {
			return
		}
		if r.matches(*newRow) {
			r.upsert(*newRow)
		} else {
			r.remove(newRow.ID)
		}
	case events.ActionDelete:
		id := ""
		if oldRow != nil {
			id = oldRow.ID
		}
		if id == "" && newRow != nil {
			id = newRow.ID
		}
		r.remove(id)
	}
	r.resort()
}

// Snapshot returns a copy of the held list.
func (r *Reconciler) Snapshot() []ConversationRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConversationRow, len(r.rows))
	copy(out, r.rows)
	return out
}

// Len reports the held list size.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *Reconciler) matches(row ConversationRow) bool {
	if !r.activeOnly {
		return true
	}
	return conversation.IsActive(row.Status)
}

func (r *Reconciler) upsert(row ConversationRow) {
	for i := range r.rows {
		if r.rows[i].ID == row.ID {
			r.rows[i] = row
			return
		}
	}
	r.rows = append(r.rows, row)
}

func (r *Reconciler) remove(id string) {
	if id == "" {
		return
	}
	for i := range r.rows {
		if r.rows[i].ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return
		}
	}
}

func (r *Reconciler) resort() {
	sort.SliceStable(r.rows, func(i, j int) bool {
		if r.rows[i].UpdatedAt == r.rows[j].UpdatedAt {
			return r.rows[i].ID < r.rows[j].ID
		}
		return r.rows[i].UpdatedAt > r.rows[j].UpdatedAt
	})
}

func decodeRow(raw json.RawMessage) *ConversationRow {
	if len(raw) == 0 {
		return nil
	}
	var row ConversationRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil
	}
	return &row
}

// RowFromConversation projects a stored conversation onto the feed row form.
func RowFromConversation(conv *conversation.Conversation) ConversationRow {
	return ConversationRow{
		ID:           conv.ID,
		UserType:     conv.UserType,
		Status:       conv.Status,
		LastMessage:  conv.LastMessage,
		ContactName:  conv.ContactName,
		ContactEmail: conv.ContactEmail,
		UpdatedAt:    conv.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
	}
}

package conversation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ContactPatch carries contact fields extracted by the assistant. Non-empty
// values overwrite what is stored (last write wins, no merging).
type ContactPatch struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Date    string
}

// Repository defines conversation storage.
type Repository interface {
	Create(ctx context.Context, conv *Conversation) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	// List returns up to limit conversations, most recently updated first.
	List(ctx context.Context, limit int) ([]*Conversation, error)
	// UpdateOnReply overwrites last_message and any non-empty contact
	// fields, and bumps updated_at.
	UpdateOnReply(ctx context.Context, id, lastMessage string, contact ContactPatch) error
	SetStatus(ctx context.Context, id, status string) error
	SetLeadID(ctx context.Context, id, leadID string) error
	Delete(ctx context.Context, id string) error
}

// MessageLog defines the canonical append-only message store.
type MessageLog interface {
	Append(ctx context.Context, msg *Message) error
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error)
}

// InMemoryRepository backs development mode and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
	msgs  map[string][]*Message
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		convs: make(map[string]*Conversation),
		msgs:  make(map[string][]*Message),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	if conv.Status == "" {
		conv.Status = StatusNew
	}
	cp := *conv
	r.mu.Lock()
	r.convs[conv.ID] = &cp
	r.mu.Unlock()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

func (r *InMemoryRepository) List(ctx context.Context, limit int) ([]*Conversation, error) {
	r.mu.RLock()
	out := make([]*Conversation, 0, len(r.convs))
	for _, conv := range r.convs {
		cp := *conv
		out = append(out, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) UpdateOnReply(ctx context.Context, id, lastMessage string, contact ContactPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return ErrNotFound
	}
	conv.LastMessage = lastMessage
	applyContact(conv, contact)
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) SetStatus(ctx context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return ErrNotFound
	}
	conv.Status = NormalizeStatus(status)
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) SetLeadID(ctx context.Context, id, leadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return ErrNotFound
	}
	conv.LeadID = &leadID
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[id]; !ok {
		return ErrNotFound
	}
	delete(r.convs, id)
	delete(r.msgs, id)
	return nil
}

func (r *InMemoryRepository) Append(ctx context.Context, msg *Message) error {
	if strings.TrimSpace(msg.Content) == "" {
		return ErrEmptyMessage
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	r.mu.Lock()
	r.msgs[msg.ConversationID] = append(r.msgs[msg.ConversationID], &cp)
	r.mu.Unlock()
	return nil
}

func (r *InMemoryRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := r.msgs[conversationID]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]*Message, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func applyContact(conv *Conversation, contact ContactPatch) {
	if contact.Name != "" {
		conv.ContactName = contact.Name
	}
	if contact.Email != "" {
		conv.ContactEmail = contact.Email
	}
	if contact.Phone != "" {
		conv.ContactPhone = contact.Phone
	}
	if contact.Company != "" {
		conv.ContactCompany = contact.Company
	}
	if contact.Date != "" {
		conv.WeddingDate = contact.Date
	}
}

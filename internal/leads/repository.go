package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UpdatePatch carries admin edits; nil fields stay untouched.
type UpdatePatch struct {
	Status   *string
	Notes    *string
	NextStep *string
	LeadType *string
	Score    *int
}

// Snapshot is one turn's extracted lead qualification, written by the reply
// orchestrator.
type Snapshot struct {
	Score    int
	LeadType string
	NextStep string
	Attrs    map[string]string
}

// Repository defines lead storage.
type Repository interface {
	// Create inserts a lead. A conversation_id collision returns
	// ErrLeadExists.
	Create(ctx context.Context, lead *Lead) error
	GetByID(ctx context.Context, id string) (*Lead, error)
	GetByConversation(ctx context.Context, conversationID string) (*Lead, error)
	List(ctx context.Context, limit int) ([]*Lead, error)
	Update(ctx context.Context, id string, patch UpdatePatch) (*Lead, error)
	// UpsertForConversation creates the conversation's lead on first call
	// and refreshes its snapshot on later ones. At most one lead per
	// conversation, enforced by the unique index.
	UpsertForConversation(ctx context.Context, conversationID string, snap Snapshot) (*Lead, error)
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository backs development mode and tests.
type InMemoryRepository struct {
	mu     sync.RWMutex
	leads  map[string]*Lead
	byConv map[string]string // conversationID -> leadID
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:  make(map[string]*Lead),
		byConv: make(map[string]string),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, lead *Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lead.ConversationID != nil {
		if _, exists := r.byConv[*lead.ConversationID]; exists {
			return ErrLeadExists
		}
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.Status == "" {
		lead.Status = StatusNew
	}
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	cp := cloneLead(lead)
	r.leads[lead.ID] = cp
	if lead.ConversationID != nil {
		r.byConv[*lead.ConversationID] = lead.ID
	}
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLead(lead), nil
}

func (r *InMemoryRepository) GetByConversation(ctx context.Context, conversationID string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConv[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLead(r.leads[id]), nil
}

func (r *InMemoryRepository) List(ctx context.Context, limit int) ([]*Lead, error) {
	r.mu.RLock()
	out := make([]*Lead, 0, len(r.leads))
	for _, lead := range r.leads {
		out = append(out, cloneLead(lead))
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

func (r *InMemoryRepository) Update(ctx context.Context, id string, patch UpdatePatch) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Status != nil {
		lead.Status = NormalizeStatus(*patch.Status)
	}
	if patch.Notes != nil {
		lead.InternalNotes = *patch.Notes
	}
	if patch.NextStep != nil {
		lead.NextStep = *patch.NextStep
	}
	if patch.LeadType != nil {
		lead.LeadType = *patch.LeadType
	}
	if patch.Score != nil {
		lead.Score = ClampScore(*patch.Score)
	}
	lead.UpdatedAt = time.Now().UTC()
	return cloneLead(lead), nil
}

func (r *InMemoryRepository) UpsertForConversation(ctx context.Context, conversationID string, snap Snapshot) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if id, exists := r.byConv[conversationID]; exists {
		lead := r.leads[id]
		lead.Score = ClampScore(snap.Score)
		if snap.LeadType != "" {
			lead.LeadType = snap.LeadType
		}
		if snap.NextStep != "" {
			lead.NextStep = snap.NextStep
		}
		if lead.Attrs == nil {
			lead.Attrs = make(map[string]string)
		}
		for k, v := range snap.Attrs {
			if v != "" {
				lead.Attrs[k] = v
			}
		}
		lead.UpdatedAt = now
		return cloneLead(lead), nil
	}

	lead := &Lead{
		ID:             uuid.NewString(),
		ConversationID: &conversationID,
		Status:         StatusNew,
		Score:          ClampScore(snap.Score),
		LeadType:       snap.LeadType,
		NextStep:       snap.NextStep,
		Attrs:          snap.Attrs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.leads[lead.ID] = cloneLead(lead)
	r.byConv[conversationID] = lead.ID
	return lead, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return ErrNotFound
	}
	if lead.ConversationID != nil {
		delete(r.byConv, *lead.ConversationID)
	}
	delete(r.leads, id)
	return nil
}

func cloneLead(lead *Lead) *Lead {
	cp := *lead
	if lead.Attrs != nil {
		cp.Attrs = make(map[string]string, len(lead.Attrs))
		for k, v := range lead.Attrs {
			cp.Attrs[k] = v
		}
	}
	if lead.ConversationID != nil {
		conv := *lead.ConversationID
		cp.ConversationID = &conv
	}
	return &cp
}

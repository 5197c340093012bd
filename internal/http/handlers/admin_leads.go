package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/evermore-ai/concierge/internal/conversation"
	"github.com/evermore-ai/concierge/internal/events"
	"github.com/evermore-ai/concierge/internal/leads"
	"github.com/evermore-ai/concierge/pkg/logging"
)

// AdminLeadsHandler serves the back-office lead endpoints.
type AdminLeadsHandler struct {
	leadsRepo leads.Repository
	convRepo  conversation.Repository
	publisher events.Publisher
	logger    *logging.Logger
}

func NewAdminLeadsHandler(leadsRepo leads.Repository, convRepo conversation.Repository, publisher events.Publisher, logger *logging.Logger) *AdminLeadsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminLeadsHandler{
		leadsRepo: leadsRepo,
		convRepo:  convRepo,
		publisher: publisher,
		logger:    logger,
	}
}

// LeadListItem is a lead plus its resolved display fields. The raw attribute
// bag stays available for the detail drawer; the list columns read from the
// resolver so historical key variants render the same.
type LeadListItem struct {
	*leads.Lead
	DisplayName string `json:"display_name"`
	Category    string `json:"display_category,omitempty"`
	Location    string `json:"display_location,omitempty"`
	Budget      string `json:"display_budget,omitempty"`
	Email       string `json:"display_email,omitempty"`
	Phone       string `json:"display_phone,omitempty"`
	WeddingDate string `json:"display_wedding_date,omitempty"`
}

func newLeadListItem(lead *leads.Lead) LeadListItem {
	return LeadListItem{
		Lead:        lead,
		DisplayName: lead.DisplayName(),
		Category:    lead.Resolve(leads.FieldCategory),
		Location:    lead.Resolve(leads.FieldLocation),
		Budget:      lead.Resolve(leads.FieldBudget),
		Email:       lead.Resolve(leads.FieldEmail),
		Phone:       lead.Resolve(leads.FieldPhone),
		WeddingDate: lead.Resolve(leads.FieldWeddingDate),
	}
}

// List handles GET /admin/leads.
func (h *AdminLeadsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.leadsRepo == nil {
		writeError(w, http.StatusServiceUnavailable, "lead store not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	all, err := h.leadsRepo.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("admin: list leads failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load leads")
		return
	}

	items := make([]LeadListItem, 0, len(all))
	for _, lead := range all {
		items = append(items, newLeadListItem(lead))
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": items, "total": len(items)})
}

// UpdateLeadRequest carries admin edits; absent fields stay untouched.
type UpdateLeadRequest struct {
	LeadID        string  `json:"leadId"`
	Status        *string `json:"status,omitempty"`
	Score         *int    `json:"score,omitempty"`
	InternalNotes *string `json:"internalNotes,omitempty"`
	NextStep      *string `json:"nextStep,omitempty"`
	LeadType      *string `json:"leadType,omitempty"`
}

// Update handles PATCH /admin/lead.
func (h *AdminLeadsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h.leadsRepo == nil {
		writeError(w, http.StatusServiceUnavailable, "lead store not configured")
		return
	}
	var req UpdateLeadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LeadID == "" {
		writeError(w, http.StatusBadRequest, "missing leadId")
		return
	}

	lead, err := h.leadsRepo.Update(r.Context(), req.LeadID, leads.UpdatePatch{
		Status:   req.Status,
		Notes:    req.InternalNotes,
		NextStep: req.NextStep,
		LeadType: req.LeadType,
		Score:    req.Score,
	})
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		h.logger.Error("admin: update lead failed", "error", err, "lead_id", req.LeadID)
		writeError(w, http.StatusInternalServerError, "failed to update lead")
		return
	}

	h.publish(r, events.ActionUpdate, lead)
	writeJSON(w, http.StatusOK, newLeadListItem(lead))
}

// DeleteLeadRequest identifies the lead to remove.
type DeleteLeadRequest struct {
	LeadID string `json:"leadId"`
}

// Delete handles POST /admin/delete-lead. The linked conversation, if any,
// is kept; only its lead pointer goes stale and the store clears it.
func (h *AdminLeadsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.leadsRepo == nil {
		writeError(w, http.StatusServiceUnavailable, "lead store not configured")
		return
	}
	var req DeleteLeadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LeadID == "" {
		writeError(w, http.StatusBadRequest, "missing leadId")
		return
	}

	lead, err := h.leadsRepo.GetByID(r.Context(), req.LeadID)
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		h.logger.Error("admin: load lead failed", "error", err, "lead_id", req.LeadID)
		writeError(w, http.StatusInternalServerError, "failed to delete lead")
		return
	}

	if err := h.leadsRepo.Delete(r.Context(), lead.ID); err != nil {
		h.logger.Error("admin: delete lead failed", "error", err, "lead_id", lead.ID)
		writeError(w, http.StatusInternalServerError, "failed to delete lead")
		return
	}
	h.publish(r, events.ActionDelete, lead)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "leadId": lead.ID})
}

// CreateFromConversationRequest identifies the source conversation.
type CreateFromConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

// CreateFromConversation handles POST /admin/create-lead-from-conversation.
// The operation is idempotent: if the conversation already has a lead, that
// lead is returned instead of a duplicate.
func (h *AdminLeadsHandler) CreateFromConversation(w http.ResponseWriter, r *http.Request) {
	if h.leadsRepo == nil || h.convRepo == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	var req CreateFromConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "missing conversationId")
		return
	}

	conv, err := h.convRepo.GetByID(r.Context(), req.ConversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("admin: load conversation failed", "error", err, "conversation_id", req.ConversationID)
		writeError(w, http.StatusInternalServerError, "failed to create lead")
		return
	}

	lead := &leads.Lead{
		ConversationID: &conv.ID,
		Status:         leads.StatusNew,
		LeadType:       conv.UserType,
		Attrs:          attrsFromConversation(conv),
	}
	if err := h.leadsRepo.Create(r.Context(), lead); err != nil {
		if errors.Is(err, leads.ErrLeadExists) {
			existing, lookupErr := h.leadsRepo.GetByConversation(r.Context(), conv.ID)
			if lookupErr != nil {
				h.logger.Error("admin: lead exists but lookup failed", "error", lookupErr, "conversation_id", conv.ID)
				writeError(w, http.StatusInternalServerError, "failed to create lead")
				return
			}
			writeJSON(w, http.StatusOK, newLeadListItem(existing))
			return
		}
		h.logger.Error("admin: create lead failed", "error", err, "conversation_id", conv.ID)
		writeError(w, http.StatusInternalServerError, "failed to create lead")
		return
	}

	if err := h.convRepo.SetLeadID(r.Context(), conv.ID, lead.ID); err != nil {
		h.logger.Error("admin: set lead id failed", "error", err, "conversation_id", conv.ID)
	}
	h.publish(r, events.ActionInsert, lead)

	writeJSON(w, http.StatusCreated, newLeadListItem(lead))
}

func attrsFromConversation(conv *conversation.Conversation) map[string]string {
	attrs := map[string]string{}
	put := func(key, value string) {
		if value != "" {
			attrs[key] = value
		}
	}
	put("name", conv.ContactName)
	put("email", conv.ContactEmail)
	put("phone", conv.ContactPhone)
	put("company", conv.ContactCompany)
	put("wedding_date", conv.WeddingDate)
	return attrs
}

func (h *AdminLeadsHandler) publish(r *http.Request, action events.Action, lead *leads.Lead) {
	if h.publisher == nil {
		return
	}
	var change events.Change
	var err error
	if action == events.ActionDelete {
		change, err = events.NewChange("leads", action, nil, lead)
	} else {
		change, err = events.NewChange("leads", action, lead, nil)
	}
	if err == nil {
		err = h.publisher.Publish(r.Context(), change)
	}
	if err != nil {
		h.logger.Warn("admin: lead change publish failed", "error", err, "lead_id", lead.ID)
	}
}

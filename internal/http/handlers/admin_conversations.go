package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/evermore-ai/concierge/internal/conversation"
	"github.com/evermore-ai/concierge/internal/events"
	"github.com/evermore-ai/concierge/pkg/logging"
)

// AdminConversationsHandler serves the back-office conversation endpoints.
// A nil repository means the store is unconfigured; the list endpoint then
// reports that state explicitly instead of an empty list.
type AdminConversationsHandler struct {
	repo        conversation.Repository
	msgs        conversation.MessageLog
	transcripts *conversation.TranscriptStore
	chat        ChatService
	publisher   events.Publisher
	listLimit   int
	logger      *logging.Logger
}

func NewAdminConversationsHandler(
	repo conversation.Repository,
	msgs conversation.MessageLog,
	transcripts *conversation.TranscriptStore,
	chat ChatService,
	publisher events.Publisher,
	listLimit int,
	logger *logging.Logger,
) *AdminConversationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if listLimit <= 0 {
		listLimit = 150
	}
	return &AdminConversationsHandler{
		repo:        repo,
		msgs:        msgs,
		transcripts: transcripts,
		chat:        chat,
		publisher:   publisher,
		listLimit:   listLimit,
		logger:      logger,
	}
}

// ConversationsListResponse distinguishes "no rows" from "no store": the
// console renders those states differently.
type ConversationsListResponse struct {
	Conversations []*conversation.Conversation `json:"conversations"`
	Total         int                          `json:"total"`
}

// List handles GET /admin/conversations.
func (h *AdminConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}

	limit := h.listLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	convs, err := h.repo.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("admin: list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}

	convs = conversation.Filter(convs, conversation.ListFilter{
		UserType: r.URL.Query().Get("type"),
		Status:   r.URL.Query().Get("status"),
		Query:    r.URL.Query().Get("q"),
	})

	writeJSON(w, http.StatusOK, ConversationsListResponse{
		Conversations: convs,
		Total:         len(convs),
	})
}

// ConversationDetailResponse bundles a conversation with its message log.
type ConversationDetailResponse struct {
	Conversation *conversation.Conversation `json:"conversation"`
	Messages     []*conversation.Message    `json:"messages"`
}

// Detail handles GET /admin/conversations/{id}.
func (h *AdminConversationsHandler) Detail(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing conversation id")
		return
	}

	conv, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("admin: load conversation failed", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	var msgs []*conversation.Message
	if h.msgs != nil {
		msgs, err = h.msgs.ListByConversation(r.Context(), id, 0)
		if err != nil {
			h.logger.Error("admin: load messages failed", "error", err, "conversation_id", id)
			writeError(w, http.StatusInternalServerError, "failed to load messages")
			return
		}
	}
	if msgs == nil {
		msgs = []*conversation.Message{}
	}

	writeJSON(w, http.StatusOK, ConversationDetailResponse{Conversation: conv, Messages: msgs})
}

// SendHumanReplyRequest is the takeover payload.
type SendHumanReplyRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

// SendHumanReply handles POST /admin/send-human-reply.
func (h *AdminConversationsHandler) SendHumanReply(w http.ResponseWriter, r *http.Request) {
	var req SendHumanReplyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "missing conversationId")
		return
	}

	msg, err := h.chat.HumanReply(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "message is required")
		case errors.Is(err, conversation.ErrNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, conversation.ErrStoreNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "conversation store not configured")
		default:
			h.logger.Error("admin: human reply failed", "error", err, "conversation_id", req.ConversationID)
			writeError(w, http.StatusInternalServerError, "failed to send reply")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

// DeleteConversationRequest identifies the conversation to remove.
type DeleteConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

// Delete handles POST /admin/delete-conversation. The message log rows go
// with the conversation; its lead, if any, survives with the link cleared.
func (h *AdminConversationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}
	var req DeleteConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "missing conversationId")
		return
	}

	conv, err := h.repo.GetByID(r.Context(), req.ConversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("admin: load conversation failed", "error", err, "conversation_id", req.ConversationID)
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}

	if err := h.repo.Delete(r.Context(), conv.ID); err != nil {
		h.logger.Error("admin: delete conversation failed", "error", err, "conversation_id", conv.ID)
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	if err := h.transcripts.Drop(r.Context(), conv.ID); err != nil {
		h.logger.Warn("admin: transcript drop failed", "error", err, "conversation_id", conv.ID)
	}
	h.publish(r, events.ActionDelete, conv)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "conversationId": conv.ID})
}

func (h *AdminConversationsHandler) publish(r *http.Request, action events.Action, conv *conversation.Conversation) {
	if h.publisher == nil {
		return
	}
	var change events.Change
	var err error
	if action == events.ActionDelete {
		change, err = events.NewChange("conversations", action, nil, conv)
	} else {
		change, err = events.NewChange("conversations", action, conv, nil)
	}
	if err == nil {
		err = h.publisher.Publish(r.Context(), change)
	}
	if err != nil {
		h.logger.Warn("admin: change event publish failed", "error", err, "conversation_id", conv.ID)
	}
}

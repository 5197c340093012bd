package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/evermore-ai/concierge/internal/assistant"
	"github.com/evermore-ai/concierge/internal/conversation"
	"github.com/evermore-ai/concierge/pkg/logging"
)

// ChatService is the reply pipeline surface the HTTP layer needs.
type ChatService interface {
	Reply(ctx context.Context, in conversation.ReplyInput) (*conversation.ReplyResult, error)
	HumanReply(ctx context.Context, conversationID, content string) (*conversation.Message, error)
}

// ChatHandler serves the public chat widget endpoint.
type ChatHandler struct {
	chat   ChatService
	logger *logging.Logger
}

func NewChatHandler(chat ChatService, logger *logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{chat: chat, logger: logger}
}

// ChatReplyRequest is the widget's turn payload. Messages carry the widget's
// local history, oldest first.
type ChatReplyRequest struct {
	ConversationID string                         `json:"conversationId"`
	UserType       string                         `json:"userType"`
	Messages       []conversation.IncomingMessage `json:"messages"`
}

// ChatReplyResponse is the assistant's answer for one turn, including the
// qualification metadata extracted from it.
type ChatReplyResponse struct {
	Reply          string                 `json:"reply"`
	Metadata       assistant.LeadMetadata `json:"metadata"`
	ConversationID string                 `json:"conversationId,omitempty"`
	LeadID         string                 `json:"leadId,omitempty"`
}

// Reply handles POST /chat-reply.
func (h *ChatHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req ChatReplyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.chat.Reply(r.Context(), conversation.ReplyInput{
		ConversationID: req.ConversationID,
		UserType:       req.UserType,
		Messages:       req.Messages,
	})
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrNoUserMessage), errors.Is(err, conversation.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "at least one user message is required")
		case errors.Is(err, conversation.ErrAssistantNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "assistant not configured")
		default:
			h.logger.Error("chat reply failed", "error", err)
			writeError(w, http.StatusBadGateway, "assistant unavailable")
		}
		return
	}

	writeJSON(w, http.StatusOK, ChatReplyResponse{
		Reply:          res.Reply,
		Metadata:       res.Meta,
		ConversationID: res.ConversationID,
		LeadID:         res.LeadID,
	})
}

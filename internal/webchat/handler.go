package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/evermore-ai/concierge/internal/conversation"
	"github.com/evermore-ai/concierge/pkg/logging"
)

// ChatService produces assistant replies for widget turns.
type ChatService interface {
	Reply(ctx context.Context, in conversation.ReplyInput) (*conversation.ReplyResult, error)
}

// Handler manages web chat connections and messages for the embeddable
// widget. Replies are produced synchronously; the socket exists for typing
// indicators, history replay and human takeover pushes.
type Handler struct {
	chat       ChatService
	transcript *conversation.TranscriptStore
	logger     *logging.Logger
	widgetJS   []byte

	mu       sync.RWMutex
	sessions map[string]*wsConn // conversationID -> active connection
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type           string           `json:"type"` // "message", "typing", "history", "session", "pong", "error"
	Text           string           `json:"text,omitempty"`
	Role           string           `json:"role,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Timestamp      string           `json:"timestamp,omitempty"`
	Messages       []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a web chat handler.
func NewHandler(chat ChatService, transcript *conversation.TranscriptStore, widgetJS []byte, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		chat:       chat,
		transcript: transcript,
		logger:     logger,
		widgetJS:   widgetJS,
		sessions:   make(map[string]*wsConn),
	}
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
// Query parameters: role (vendor|couple), conversation (id to resume).
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	userType := conversation.NormalizeUserType(r.URL.Query().Get("role"))
	convID := r.URL.Query().Get("conversation")

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", ConversationID: convID})

	history := h.replayHistory(r.Context(), conn, convID)

	sessionKey := convID
	if sessionKey == "" {
		sessionKey = generateSessionID()
	}
	wsc := &wsConn{conn: conn, done: make(chan struct{})}
	h.register(sessionKey, wsc)
	defer func() {
		h.unregister(sessionKey, wsc)
		close(wsc.done)
	}()

	h.logger.Info("webchat: connection opened", "user_type", userType, "conversation_id", convID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "conversation_id", convID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}
		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "typing"})

		history = append(history, conversation.IncomingMessage{Role: conversation.RoleUser, Content: msg.Text})
		res, err := h.chat.Reply(r.Context(), conversation.ReplyInput{
			ConversationID: convID,
			UserType:       userType,
			Messages:       history,
		})
		if err != nil {
			history = history[:len(history)-1]
			h.logger.Error("webchat: reply failed", "error", err, "conversation_id", convID)
			_ = websocket.JSON.Send(conn, OutboundMessage{
				Type: "error",
				Text: replyErrorText(err),
			})
			continue
		}

		if res.ConversationID != "" && res.ConversationID != convID {
			// First persisted turn; rebind the session so takeover pushes land.
			h.unregister(sessionKey, wsc)
			convID = res.ConversationID
			sessionKey = convID
			h.register(sessionKey, wsc)
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", ConversationID: convID})
		}

		history = append(history, conversation.IncomingMessage{Role: conversation.RoleAssistant, Content: res.Reply})
		_ = websocket.JSON.Send(conn, OutboundMessage{
			Type:           "message",
			Role:           conversation.RoleAssistant,
			Text:           res.Reply,
			ConversationID: convID,
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (h *Handler) replayHistory(ctx context.Context, conn *websocket.Conn, convID string) []conversation.IncomingMessage {
	if convID == "" || h.transcript == nil {
		return nil
	}
	msgs, err := h.transcript.List(ctx, convID, 50)
	if err != nil || len(msgs) == 0 {
		return nil
	}

	replay := make([]HistoryMessage, 0, len(msgs))
	history := make([]conversation.IncomingMessage, 0, len(msgs))
	for _, m := range msgs {
		replay = append(replay, HistoryMessage{
			Role:      m.Role,
			Text:      m.Body,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
		history = append(history, conversation.IncomingMessage{Role: m.Role, Content: m.Body})
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: replay})
	return history
}

func (h *Handler) register(key string, wsc *wsConn) {
	h.mu.Lock()
	h.sessions[key] = wsc
	h.mu.Unlock()
}

func (h *Handler) unregister(key string, wsc *wsConn) {
	h.mu.Lock()
	if h.sessions[key] == wsc {
		delete(h.sessions, key)
	}
	h.mu.Unlock()
}

// PushToConversation delivers a message to the widget socket of a live
// conversation, used for human takeover replies. Returns false when the
// visitor is not connected.
func (h *Handler) PushToConversation(conversationID string, msg *conversation.Message) bool {
	h.mu.RLock()
	wsc, ok := h.sessions[conversationID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return websocket.JSON.Send(wsc.conn, OutboundMessage{
		Type:           "message",
		Role:           msg.Role,
		Text:           msg.Content,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}) == nil
}

// HandleMessage is the HTTP fallback for widgets without WebSocket support.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string                         `json:"conversationId"`
		UserType       string                         `json:"userType"`
		Messages       []conversation.IncomingMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.chat.Reply(r.Context(), conversation.ReplyInput{
		ConversationID: req.ConversationID,
		UserType:       req.UserType,
		Messages:       req.Messages,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, conversation.ErrNoUserMessage) {
			status = http.StatusBadRequest
		} else if errors.Is(err, conversation.ErrAssistantNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, replyErrorText(err), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"reply":          res.Reply,
		"metadata":       res.Meta,
		"conversationId": res.ConversationID,
		"leadId":         res.LeadID,
	})
}

// HandleHistory returns chat history for a conversation.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	convID := r.URL.Query().Get("conversation")
	if convID == "" {
		http.Error(w, "conversation parameter required", http.StatusBadRequest)
		return
	}

	history := []HistoryMessage{}
	if h.transcript != nil {
		msgs, err := h.transcript.List(r.Context(), convID, 100)
		if err != nil {
			h.logger.Error("webchat: failed to load history", "error", err, "conversation_id", convID)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		for _, m := range msgs {
			history = append(history, HistoryMessage{
				Role:      m.Role,
				Text:      m.Body,
				Timestamp: m.Timestamp.Format(time.RFC3339),
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": history})
}

// HandleWidgetJS serves the embeddable widget JavaScript.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(h.widgetJS)
}

func replyErrorText(err error) string {
	switch {
	case errors.Is(err, conversation.ErrNoUserMessage):
		return "say something first"
	case errors.Is(err, conversation.ErrAssistantNotConfigured):
		return "chat is temporarily offline"
	default:
		return "Sorry, something went wrong. Please try again."
	}
}

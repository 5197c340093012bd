package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/evermore-ai/concierge/internal/conversation"
	"github.com/evermore-ai/concierge/internal/events"
	"github.com/evermore-ai/concierge/pkg/logging"
)

// FeedEnvelope is one frame on the admin feed socket.
type FeedEnvelope struct {
	Type   string            `json:"type"`
	Rows   []ConversationRow `json:"rows,omitempty"`
	Change *events.Change    `json:"change,omitempty"`
}

// FeedHandler streams store changes to admin clients over a websocket.
// Every connection starts with an authoritative snapshot, then receives
// either raw change events or, for the queue view, the reconciled active
// list after each event.
type FeedHandler struct {
	hub    *events.Hub
	repo   conversation.Repository
	logger *logging.Logger
}

func NewFeedHandler(hub *events.Hub, repo conversation.Repository, logger *logging.Logger) *FeedHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FeedHandler{hub: hub, repo: repo, logger: logger}
}

// ServeHTTP upgrades to a websocket and streams until the client disconnects.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	queueView := r.URL.Query().Get("view") == "queue"
	websocket.Handler(func(ws *websocket.Conn) {
		h.serve(r.Context(), ws, queueView)
	}).ServeHTTP(w, r)
}

func (h *FeedHandler) serve(ctx context.Context, ws *websocket.Conn, queueView bool) {
	defer func() { _ = ws.Close() }()

	rec := NewReconciler(queueView)
	rec.Seed(h.snapshot(ctx))

	if err := sendEnvelope(ws, FeedEnvelope{Type: "snapshot", Rows: rec.Snapshot()}); err != nil {
		return
	}

	changes, cancel := h.hub.Subscribe(64)
	defer cancel()

	// Drain client frames so closes are noticed; inbound content is ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		var discard string
		for {
			if err := websocket.Message.Receive(ws, &discard); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			var frame FeedEnvelope
			if queueView {
				if change.Table != "conversations" {
					continue
				}
				rec.ApplyChange(change)
				frame = FeedEnvelope{Type: "rows", Rows: rec.Snapshot()}
			} else {
				c := change
				frame = FeedEnvelope{Type: "change", Change: &c}
			}
			if err := sendEnvelope(ws, frame); err != nil {
				return
			}
		}
	}
}

func (h *FeedHandler) snapshot(ctx context.Context) []ConversationRow {
	if h.repo == nil {
		return nil
	}
	convs, err := h.repo.List(ctx, 0)
	if err != nil {
		h.logger.Warn("feed: snapshot load failed", "error", err)
		return nil
	}
	rows := make([]ConversationRow, 0, len(convs))
	for _, conv := range convs {
		rows = append(rows, RowFromConversation(conv))
	}
	return rows
}

func sendEnvelope(ws *websocket.Conn, env FeedEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return websocket.Message.Send(ws, string(data))
}

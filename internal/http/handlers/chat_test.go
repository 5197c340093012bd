package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/evermore-ai/concierge/internal/assistant"
	"github.com/evermore-ai/concierge/internal/conversation"
)

type fakeChatService struct {
	result   *conversation.ReplyResult
	replyErr error
	humanMsg *conversation.Message
	humanErr error
	lastIn   conversation.ReplyInput
}

func (f *fakeChatService) Reply(ctx context.Context, in conversation.ReplyInput) (*conversation.ReplyResult, error) {
	f.lastIn = in
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	return f.result, nil
}

func (f *fakeChatService) HumanReply(ctx context.Context, conversationID, content string) (*conversation.Message, error) {
	if f.humanErr != nil {
		return nil, f.humanErr
	}
	return f.humanMsg, nil
}

func postJSON(t *testing.T, handler http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestChatReplySuccess(t *testing.T) {
	svc := &fakeChatService{result: &conversation.ReplyResult{
		Reply:          "Congratulations on the engagement!",
		ConversationID: "conv-1",
		LeadID:         "lead-1",
		Meta:           assistant.LeadMetadata{Score: 7, Location: "Lisbon"},
	}}
	h := NewChatHandler(svc, nil)

	body := `{"userType":"planning","messages":[{"role":"user","content":"We just got engaged"}]}`
	rec := postJSON(t, h.Reply, "/chat-reply", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp ChatReplyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reply != "Congratulations on the engagement!" || resp.ConversationID != "conv-1" || resp.LeadID != "lead-1" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Metadata.Score != 7 || resp.Metadata.Location != "Lisbon" {
		t.Fatalf("metadata not serialized: %+v", resp.Metadata)
	}
	if svc.lastIn.UserType != "planning" || len(svc.lastIn.Messages) != 1 {
		t.Fatalf("input not forwarded: %+v", svc.lastIn)
	}
}

func TestChatReplyValidationErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"no user message", conversation.ErrNoUserMessage, http.StatusBadRequest},
		{"assistant unconfigured", conversation.ErrAssistantNotConfigured, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewChatHandler(&fakeChatService{replyErr: tc.err}, nil)
			rec := postJSON(t, h.Reply, "/chat-reply", `{"messages":[]}`)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestChatReplyBadJSON(t *testing.T) {
	h := NewChatHandler(&fakeChatService{}, nil)
	rec := postJSON(t, h.Reply, "/chat-reply", `{"messages":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/evermore-ai/concierge/internal/assistant"
	"github.com/evermore-ai/concierge/internal/events"
	"github.com/evermore-ai/concierge/internal/leads"
)

type scriptedClient struct {
	reply string
	err   error
	calls int
	last  assistant.Request
}

func (c *scriptedClient) Complete(ctx context.Context, req assistant.Request) (assistant.Response, error) {
	c.calls++
	c.last = req
	if c.err != nil {
		return assistant.Response{}, c.err
	}
	return assistant.Response{Text: c.reply, StopReason: "stop"}, nil
}

type capturePublisher struct {
	mu      sync.Mutex
	changes []events.Change
}

func (p *capturePublisher) Publish(ctx context.Context, change events.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return nil
}

func (p *capturePublisher) byTable(table string) []events.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []events.Change{}
	for _, c := range p.changes {
		if c.Table == table {
			out = append(out, c)
		}
	}
	return out
}

type captureNotifier struct {
	leads []*leads.Lead
}

func (n *captureNotifier) NotifyQualifiedLead(ctx context.Context, lead *leads.Lead, conv *Conversation) error {
	n.leads = append(n.leads, lead)
	return nil
}

const scoredReply = `We'd love to help with your June wedding!

---LEAD DATA---
{"score": 8, "category": "florist", "location": "Lisbon", "name": "Ana", "email": "ana@example.com", "next_step": "Share portfolio"}
---END LEAD DATA---`

func newTestOrchestrator(client assistant.Client) (*Orchestrator, *InMemoryRepository, *leads.InMemoryRepository, *capturePublisher, *captureNotifier) {
	repo := NewInMemoryRepository()
	leadsRepo := leads.NewInMemoryRepository()
	pub := &capturePublisher{}
	notifier := &captureNotifier{}
	orch := NewOrchestrator(OrchestratorDeps{
		Client:    client,
		Repo:      repo,
		Msgs:      repo,
		LeadsRepo: leadsRepo,
		Publisher: pub,
		Notifier:  notifier,
	})
	return orch, repo, leadsRepo, pub, notifier
}

func replyInput(convID string, turns ...string) ReplyInput {
	in := ReplyInput{ConversationID: convID, UserType: "vendor"}
	for i, content := range turns {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		in.Messages = append(in.Messages, IncomingMessage{Role: role, Content: content})
	}
	return in
}

func TestReplyRequiresUserMessage(t *testing.T) {
	orch, _, _, _, _ := newTestOrchestrator(&scriptedClient{reply: "hi"})

	_, err := orch.Reply(context.Background(), ReplyInput{UserType: "vendor"})
	if !errors.Is(err, ErrNoUserMessage) {
		t.Fatalf("err = %v, want ErrNoUserMessage", err)
	}

	in := ReplyInput{Messages: []IncomingMessage{{Role: RoleAssistant, Content: "hello"}}}
	if _, err := orch.Reply(context.Background(), in); !errors.Is(err, ErrNoUserMessage) {
		t.Fatalf("err = %v, want ErrNoUserMessage for assistant-only history", err)
	}
}

func TestReplyWithoutClient(t *testing.T) {
	orch, _, _, _, _ := newTestOrchestrator(nil)
	_, err := orch.Reply(context.Background(), replyInput("", "I need a florist"))
	if !errors.Is(err, ErrAssistantNotConfigured) {
		t.Fatalf("err = %v, want ErrAssistantNotConfigured", err)
	}
}

func TestReplyCreatesConversationAndLead(t *testing.T) {
	client := &scriptedClient{reply: scoredReply}
	orch, repo, leadsRepo, pub, notifier := newTestOrchestrator(client)

	res, err := orch.Reply(context.Background(), replyInput("", "I'm a florist in Lisbon, can you find me couples?"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if res.Reply != "We'd love to help with your June wedding!" {
		t.Errorf("reply = %q, metadata block should be stripped", res.Reply)
	}
	if res.ConversationID == "" {
		t.Fatal("conversation id not set")
	}
	if res.Meta.Score != 8 {
		t.Errorf("score = %d, want 8", res.Meta.Score)
	}

	conv, err := repo.GetByID(context.Background(), res.ConversationID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if conv.UserType != UserTypeVendor {
		t.Errorf("user type = %q, want vendor", conv.UserType)
	}
	if conv.ContactName != "Ana" || conv.ContactEmail != "ana@example.com" {
		t.Errorf("contact not applied: %+v", conv)
	}
	if conv.LeadID == nil || *conv.LeadID != res.LeadID {
		t.Errorf("lead id not linked: %+v", conv.LeadID)
	}

	msgs, err := repo.ListByConversation(context.Background(), conv.ID, 0)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Fatalf("message log = %d entries, want user+assistant turn", len(msgs))
	}

	lead, err := leadsRepo.GetByConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("GetByConversation: %v", err)
	}
	if lead.Score != 8 || lead.Attrs["category"] != "florist" {
		t.Errorf("lead snapshot wrong: %+v", lead)
	}

	if got := pub.byTable("conversations"); len(got) != 1 || got[0].Action != events.ActionInsert {
		t.Errorf("conversation events = %+v, want one INSERT", got)
	}
	if len(notifier.leads) != 1 {
		t.Errorf("notifier calls = %d, want 1", len(notifier.leads))
	}
}

func TestReplyReusesLeadAcrossTurns(t *testing.T) {
	client := &scriptedClient{reply: scoredReply}
	orch, _, leadsRepo, pub, _ := newTestOrchestrator(client)

	first, err := orch.Reply(context.Background(), replyInput("", "I'm a florist"))
	if err != nil {
		t.Fatalf("first Reply: %v", err)
	}

	second, err := orch.Reply(context.Background(), replyInput(first.ConversationID, "I'm a florist", first.Reply, "Budget is 2k"))
	if err != nil {
		t.Fatalf("second Reply: %v", err)
	}

	if second.ConversationID != first.ConversationID {
		t.Fatalf("conversation id changed across turns")
	}
	if second.LeadID != first.LeadID {
		t.Fatalf("lead id changed across turns: %q vs %q", first.LeadID, second.LeadID)
	}
	all, err := leadsRepo.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("leads = %d, want 1 regardless of turn count", len(all))
	}

	if got := pub.byTable("conversations"); len(got) != 2 || got[1].Action != events.ActionUpdate {
		t.Errorf("second turn should publish UPDATE, got %+v", got)
	}
}

func TestReplyMetadataOnlyCompletionNeverLeaksBlock(t *testing.T) {
	client := &scriptedClient{reply: "---LEAD DATA---\n{\"score\": 9, \"name\": \"Ana\"}\n---END LEAD DATA---"}
	orch, repo, _, _, _ := newTestOrchestrator(client)

	res, err := orch.Reply(context.Background(), replyInput("", "My name is Ana"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if strings.Contains(res.Reply, "---") || strings.Contains(res.Reply, "{") {
		t.Fatalf("reply leaks the metadata block: %q", res.Reply)
	}
	if res.Reply == "" {
		t.Fatal("reply should fall back to a visible message")
	}
	if res.Meta.Score != 9 {
		t.Errorf("score = %d, want 9", res.Meta.Score)
	}

	// The persisted assistant turn carries the fallback text, not the block.
	msgs, err := repo.ListByConversation(context.Background(), res.ConversationID, 0)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if len(msgs) != 2 || strings.Contains(msgs[1].Content, "---") {
		t.Fatalf("stored assistant turn wrong: %+v", msgs)
	}
}

func TestReplyWithoutStoreStillAnswers(t *testing.T) {
	client := &scriptedClient{reply: "Happy to help!"}
	orch := NewOrchestrator(OrchestratorDeps{Client: client})

	res, err := orch.Reply(context.Background(), replyInput("", "hello"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if res.Reply != "Happy to help!" {
		t.Errorf("reply = %q", res.Reply)
	}
	if res.ConversationID != "" {
		t.Errorf("conversation id = %q, want empty without a store", res.ConversationID)
	}
}

func TestReplyPropagatesCompletionFailure(t *testing.T) {
	client := &scriptedClient{err: errors.New("model unavailable")}
	orch, _, _, _, _ := newTestOrchestrator(client)

	if _, err := orch.Reply(context.Background(), replyInput("", "hello")); err == nil {
		t.Fatal("expected completion error")
	}
}

func TestReplySelectsPromptByUserType(t *testing.T) {
	client := &scriptedClient{reply: "hi"}
	orch, _, _, _, _ := newTestOrchestrator(client)

	in := replyInput("", "hello")
	in.UserType = "couple"
	if _, err := orch.Reply(context.Background(), in); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(client.last.System) != 1 {
		t.Fatalf("system prompts = %d, want 1", len(client.last.System))
	}
	if client.last.System[0] != assistant.SystemPrompt(assistant.RoleCouple) {
		t.Error("couple widget should get the couple prompt")
	}
}

func TestHumanReply(t *testing.T) {
	client := &scriptedClient{reply: "hi"}
	orch, repo, _, pub, _ := newTestOrchestrator(client)

	res, err := orch.Reply(context.Background(), replyInput("", "hello"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}

	msg, err := orch.HumanReply(context.Background(), res.ConversationID, "Hi, Maria from Evermore here.")
	if err != nil {
		t.Fatalf("HumanReply: %v", err)
	}
	if msg.Role != RoleHuman {
		t.Errorf("role = %q, want human", msg.Role)
	}

	conv, err := repo.GetByID(context.Background(), res.ConversationID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if conv.Status != StatusInProgress {
		t.Errorf("status = %q, want in_progress after takeover", conv.Status)
	}
	if conv.LastMessage != "Hi, Maria from Evermore here." {
		t.Errorf("last message = %q", conv.LastMessage)
	}

	msgs, _ := repo.ListByConversation(context.Background(), conv.ID, 0)
	if len(msgs) != 3 || msgs[2].Role != RoleHuman {
		t.Fatalf("message log = %d entries, want human turn appended", len(msgs))
	}

	convEvents := pub.byTable("conversations")
	if len(convEvents) != 2 || convEvents[1].Action != events.ActionUpdate {
		t.Errorf("takeover should publish UPDATE, got %+v", convEvents)
	}
}

func TestHumanReplyValidation(t *testing.T) {
	client := &scriptedClient{reply: "hi"}
	orch, _, _, _, _ := newTestOrchestrator(client)

	if _, err := orch.HumanReply(context.Background(), "whatever", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
	if _, err := orch.HumanReply(context.Background(), "missing", "hello"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	bare := NewOrchestrator(OrchestratorDeps{Client: client})
	if _, err := bare.HumanReply(context.Background(), "id", "hello"); !errors.Is(err, ErrStoreNotConfigured) {
		t.Fatalf("err = %v, want ErrStoreNotConfigured", err)
	}
}

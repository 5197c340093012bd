package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/evermore-ai/concierge/internal/assistant"
	"github.com/evermore-ai/concierge/internal/events"
	"github.com/evermore-ai/concierge/internal/leads"
	"github.com/evermore-ai/concierge/internal/observability/metrics"
	"github.com/evermore-ai/concierge/pkg/logging"
)

// LeadNotifier alerts the team about qualified leads. Implementations decide
// the score threshold.
type LeadNotifier interface {
	NotifyQualifiedLead(ctx context.Context, lead *leads.Lead, conv *Conversation) error
}

// IncomingMessage is one turn of widget-supplied history.
type IncomingMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReplyInput is a chat turn from the public widget.
type ReplyInput struct {
	ConversationID string
	UserType       string
	Messages       []IncomingMessage
}

// ReplyResult is the outcome of one assistant turn.
type ReplyResult struct {
	Reply          string
	ConversationID string
	LeadID         string
	Meta           assistant.LeadMetadata
}

// OrchestratorDeps wires the reply pipeline. Repo, Msgs, Transcripts,
// LeadsRepo, Publisher, Notifier and Metrics may each be nil; persistence and
// side effects degrade to no-ops so the widget keeps answering.
type OrchestratorDeps struct {
	Client      assistant.Client
	Provider    string
	Repo        Repository
	Msgs        MessageLog
	Transcripts *TranscriptStore
	LeadsRepo   leads.Repository
	Publisher   events.Publisher
	Notifier    LeadNotifier
	Metrics     *metrics.ChatMetrics
	Logger      *logging.Logger
}

// Orchestrator runs the chat reply pipeline: complete with the assistant,
// parse the lead metadata block, persist the turn, upsert the conversation's
// lead, and fan the changes out to realtime subscribers.
type Orchestrator struct {
	client      assistant.Client
	provider    string
	repo        Repository
	msgs        MessageLog
	transcripts *TranscriptStore
	leadsRepo   leads.Repository
	publisher   events.Publisher
	notifier    LeadNotifier
	metrics     *metrics.ChatMetrics
	logger      *logging.Logger
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Provider == "" {
		deps.Provider = "llm"
	}
	return &Orchestrator{
		client:      deps.Client,
		provider:    deps.Provider,
		repo:        deps.Repo,
		msgs:        deps.Msgs,
		transcripts: deps.Transcripts,
		leadsRepo:   deps.LeadsRepo,
		publisher:   deps.Publisher,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

const (
	replyMaxTokens   = 1024
	replyTemperature = 0.7

	// Shown when a completion contains nothing outside the metadata block.
	emptyReplyFallback = "Thanks for sharing that! Is there anything else I can help you with?"
)

// Reply produces the assistant's answer for one widget turn. Store failures
// after a successful completion are logged, not returned: the visitor gets
// their reply even when persistence is degraded.
func (o *Orchestrator) Reply(ctx context.Context, in ReplyInput) (*ReplyResult, error) {
	lastUser := lastUserMessage(in.Messages)
	if lastUser == "" {
		return nil, ErrNoUserMessage
	}
	if o.client == nil {
		return nil, ErrAssistantNotConfigured
	}

	userType := NormalizeUserType(in.UserType)

	req := assistant.Request{
		System:      []string{assistant.SystemPrompt(promptRole(userType))},
		Messages:    chatHistory(in.Messages),
		MaxTokens:   replyMaxTokens,
		Temperature: replyTemperature,
	}

	start := time.Now()
	resp, err := o.client.Complete(ctx, req)
	o.metrics.ObserveLLMLatency(o.provider, time.Since(start).Seconds())
	if err != nil {
		o.metrics.ObserveReply(RoleAssistant, "error")
		return nil, err
	}

	reply, meta, _ := assistant.ParseReply(resp.Text)
	if reply == "" {
		// Metadata-only completion. The raw text still carries the block,
		// so it must never stand in for the visible reply.
		reply = emptyReplyFallback
	}
	o.metrics.ObserveReply(RoleAssistant, "ok")

	result := &ReplyResult{Reply: reply, Meta: meta}
	if o.repo == nil {
		return result, nil
	}

	conv, created, err := o.upsertConversation(ctx, in.ConversationID, userType, lastUser, meta)
	if err != nil {
		o.logger.Error("chat: conversation persist failed", "error", err)
		return result, nil
	}
	result.ConversationID = conv.ID

	o.appendTurn(ctx, conv.ID, RoleUser, lastUser)
	o.appendTurn(ctx, conv.ID, RoleAssistant, reply)

	if lead := o.upsertLead(ctx, conv, meta); lead != nil {
		result.LeadID = lead.ID
		if o.notifier != nil {
			if err := o.notifier.NotifyQualifiedLead(ctx, lead, conv); err != nil {
				o.logger.Error("chat: lead notification failed", "error", err, "lead_id", lead.ID)
			}
		}
	}

	action := events.ActionUpdate
	if created {
		action = events.ActionInsert
	}
	o.publishConversation(ctx, action, conv.ID)

	return result, nil
}

// HumanReply records an admin takeover message. The conversation moves to
// in_progress and the turn lands in the same message log the widget reads.
func (o *Orchestrator) HumanReply(ctx context.Context, conversationID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if o.repo == nil {
		return nil, ErrStoreNotConfigured
	}

	conv, err := o.repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &Message{ConversationID: conv.ID, Role: RoleHuman, Content: content}
	if o.msgs != nil {
		if err := o.msgs.Append(ctx, msg); err != nil {
			return nil, err
		}
	}
	if err := o.transcripts.Append(ctx, conv.ID, TranscriptMessage{ID: msg.ID, Role: RoleHuman, Body: content}); err != nil {
		o.logger.Warn("chat: transcript append failed", "error", err, "conversation_id", conv.ID)
	}

	if err := o.repo.UpdateOnReply(ctx, conv.ID, content, ContactPatch{}); err != nil {
		return nil, err
	}
	if conv.Status != StatusInProgress {
		if err := o.repo.SetStatus(ctx, conv.ID, StatusInProgress); err != nil {
			return nil, err
		}
	}
	o.metrics.ObserveReply(RoleHuman, "ok")
	o.publishConversation(ctx, events.ActionUpdate, conv.ID)
	return msg, nil
}

func (o *Orchestrator) upsertConversation(ctx context.Context, id, userType, lastUser string, meta assistant.LeadMetadata) (*Conversation, bool, error) {
	contact := ContactPatch{
		Name:    meta.Name,
		Email:   meta.Email,
		Phone:   meta.Phone,
		Company: meta.Company,
		Date:    meta.WeddingDate,
	}

	if id != "" {
		if err := o.repo.UpdateOnReply(ctx, id, lastUser, contact); err == nil {
			conv, err := o.repo.GetByID(ctx, id)
			return conv, false, err
		} else if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		// Unknown id from the widget: fall through and create a fresh row.
	}

	conv := &Conversation{
		ID:           id,
		UserType:     userType,
		Status:       StatusNew,
		FirstMessage: lastUser,
		LastMessage:  lastUser,
	}
	applyContact(conv, contact)
	if err := o.repo.Create(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (o *Orchestrator) appendTurn(ctx context.Context, conversationID, role, content string) {
	msg := &Message{ConversationID: conversationID, Role: role, Content: content}
	if o.msgs != nil {
		if err := o.msgs.Append(ctx, msg); err != nil {
			o.logger.Error("chat: message append failed", "error", err, "conversation_id", conversationID, "role", role)
		}
	}
	if err := o.transcripts.Append(ctx, conversationID, TranscriptMessage{ID: msg.ID, Role: role, Body: content}); err != nil {
		o.logger.Warn("chat: transcript append failed", "error", err, "conversation_id", conversationID)
	}
}

func (o *Orchestrator) upsertLead(ctx context.Context, conv *Conversation, meta assistant.LeadMetadata) *leads.Lead {
	if o.leadsRepo == nil || meta.IsZero() {
		return nil
	}

	snap := leads.Snapshot{
		Score:    meta.Score,
		LeadType: conv.UserType,
		NextStep: meta.NextStep,
		Attrs:    meta.Attrs(),
	}
	lead, err := o.leadsRepo.UpsertForConversation(ctx, conv.ID, snap)
	if err != nil {
		o.logger.Error("chat: lead upsert failed", "error", err, "conversation_id", conv.ID)
		return nil
	}

	if conv.LeadID == nil || *conv.LeadID != lead.ID {
		if err := o.repo.SetLeadID(ctx, conv.ID, lead.ID); err != nil {
			o.logger.Error("chat: set lead id failed", "error", err, "conversation_id", conv.ID)
		}
		conv.LeadID = &lead.ID
	}
	o.metrics.ObserveLeadCreated("chat")

	// Fresh rows carry matching timestamps; refreshed ones were bumped.
	action := events.ActionUpdate
	if lead.CreatedAt.Equal(lead.UpdatedAt) {
		action = events.ActionInsert
	}
	o.publishChange(ctx, "leads", action, lead)
	return lead
}

func (o *Orchestrator) publishConversation(ctx context.Context, action events.Action, id string) {
	if o.publisher == nil {
		return
	}
	conv, err := o.repo.GetByID(ctx, id)
	if err != nil {
		o.logger.Warn("chat: change event skipped, row reload failed", "error", err, "conversation_id", id)
		return
	}
	o.publishChange(ctx, "conversations", action, conv)
}

func (o *Orchestrator) publishChange(ctx context.Context, table string, action events.Action, row any) {
	if o.publisher == nil {
		return
	}
	change, err := events.NewChange(table, action, row, nil)
	if err != nil {
		o.logger.Warn("chat: change event build failed", "error", err, "table", table)
		return
	}
	if err := o.publisher.Publish(ctx, change); err != nil {
		o.logger.Warn("chat: change event publish failed", "error", err, "table", table)
		return
	}
	o.metrics.ObserveFeedEvent(table, string(action))
}

func lastUserMessage(msgs []IncomingMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return strings.TrimSpace(msgs[i].Content)
		}
	}
	return ""
}

func chatHistory(msgs []IncomingMessage) []assistant.ChatMessage {
	out := make([]assistant.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case RoleUser:
			out = append(out, assistant.ChatMessage{Role: assistant.ChatRoleUser, Content: content})
		case RoleAssistant, RoleHuman:
			// Takeover turns read as assistant turns to the model.
			out = append(out, assistant.ChatMessage{Role: assistant.ChatRoleAssistant, Content: content})
		}
	}
	return out
}

func promptRole(userType string) string {
	if userType == UserTypeVendor {
		return assistant.RoleVendor
	}
	return assistant.RoleCouple
}

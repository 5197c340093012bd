package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/evermore-ai/concierge/internal/conversation"
	"github.com/evermore-ai/concierge/internal/leads"
	"github.com/evermore-ai/concierge/pkg/logging"
)

// Service alerts the concierge team when chat produces a qualified lead.
type Service struct {
	email      EmailSender
	recipients []string
	minScore   int
	logger     *logging.Logger
}

// NewService creates a notification service. minScore is the lowest lead
// score that triggers an alert.
func NewService(email EmailSender, recipients []string, minScore int, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		recipients: recipients,
		minScore:   minScore,
		logger:     logger,
	}
}

// NotifyQualifiedLead emails the team about a lead whose score cleared the
// threshold. Leads below the threshold and unconfigured senders are skipped
// silently.
func (s *Service) NotifyQualifiedLead(ctx context.Context, lead *leads.Lead, conv *conversation.Conversation) error {
	if s == nil || lead == nil {
		return nil
	}
	if lead.Score < s.minScore {
		return nil
	}
	if s.email == nil || len(s.recipients) == 0 {
		s.logger.Debug("notify: email not configured, skipping qualified lead alert", "lead_id", lead.ID)
		return nil
	}

	name := lead.DisplayName()
	subject := fmt.Sprintf("Qualified lead (score %d) - %s", lead.Score, name)

	var details strings.Builder
	fmt.Fprintf(&details, "Name: %s\nScore: %d/10\n", name, lead.Score)
	if lead.LeadType != "" {
		fmt.Fprintf(&details, "Type: %s\n", lead.LeadType)
	}
	attrLabels := []struct {
		field string
		label string
	}{
		{leads.FieldCategory, "Category"},
		{leads.FieldLocation, "Location"},
		{leads.FieldBudget, "Budget"},
		{leads.FieldWeddingDate, "Wedding date"},
	}
	for _, attr := range attrLabels {
		if v := lead.Resolve(attr.field); v != "" {
			fmt.Fprintf(&details, "%s: %s\n", attr.label, v)
		}
	}
	if v := lead.Resolve(leads.FieldEmail); v != "" {
		fmt.Fprintf(&details, "Email: %s\n", v)
	}
	if v := lead.Resolve(leads.FieldPhone); v != "" {
		fmt.Fprintf(&details, "Phone: %s\n", v)
	}
	if lead.NextStep != "" {
		fmt.Fprintf(&details, "Next step: %s\n", lead.NextStep)
	}
	if conv != nil {
		fmt.Fprintf(&details, "\nLast message: %s\n", conv.LastMessage)
		fmt.Fprintf(&details, "Conversation: %s\n", conv.ID)
	}

	body := fmt.Sprintf("A chat visitor just qualified as a lead.\n\n%s\nPlease follow up while the conversation is warm.", details.String())

	var errs []error
	for _, recipient := range s.recipients {
		msg := EmailMessage{
			To:      recipient,
			Subject: subject,
			Body:    body,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send qualified lead email", "error", err, "to", recipient)
			errs = append(errs, err)
			continue
		}
		s.logger.Info("notify: qualified lead email sent", "to", recipient, "lead_id", lead.ID, "score", lead.Score)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

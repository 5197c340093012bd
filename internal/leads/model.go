package leads

import (
	"strings"
	"time"
)

// Display statuses for the admin pipeline view. Stored values are an open
// vocabulary; NormalizeStatus folds them onto this set.
const (
	StatusNew        = "New"
	StatusInProgress = "In progress"
	StatusContacted  = "Contacted"
	StatusProposal   = "Proposal"
	StatusWon        = "Won"
	StatusLost       = "Lost"
)

// Lead is a sales-opportunity record, optionally derived from a conversation.
// Core fields get columns; the historical field-name variants live in Attrs
// and resolve through ordered candidate lists.
type Lead struct {
	ID             string            `json:"id"`
	ConversationID *string           `json:"conversation_id,omitempty"`
	Status         string            `json:"status"`
	Score          int               `json:"score"`
	LeadType       string            `json:"lead_type,omitempty"`
	NextStep       string            `json:"next_step,omitempty"`
	InternalNotes  string            `json:"internal_notes,omitempty"`
	Attrs          map[string]string `json:"attrs,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Logical attribute names accepted by Resolve.
const (
	FieldName        = "name"
	FieldCategory    = "category"
	FieldLocation    = "location"
	FieldBudget      = "budget"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldWeddingDate = "wedding_date"
)

// fieldCandidates maps a logical attribute to the stored keys that may carry
// it, in priority order. The schema accumulated variants over time
// (vendor_name vs business_name vs venue_name); display code never repeats
// the chain, it goes through Resolve.
var fieldCandidates = map[string][]string{
	FieldName:        {"vendor_name", "business_name", "venue_name", "name", "contact_name"},
	FieldCategory:    {"category", "business_category", "vendor_type", "service_type"},
	FieldLocation:    {"location", "city", "region", "area"},
	FieldBudget:      {"budget", "budget_range", "price_range", "estimated_budget"},
	FieldEmail:       {"email", "contact_email"},
	FieldPhone:       {"phone", "contact_phone", "phone_number"},
	FieldWeddingDate: {"wedding_date", "event_date", "date"},
}

// Resolve returns the display value for a logical attribute, walking the
// candidate keys in order. Unknown attributes and missing values yield "".
func (l *Lead) Resolve(field string) string {
	if l == nil || l.Attrs == nil {
		return ""
	}
	for _, key := range fieldCandidates[field] {
		if v := strings.TrimSpace(l.Attrs[key]); v != "" {
			return v
		}
	}
	return ""
}

// DisplayName is the headline shown in lead lists.
func (l *Lead) DisplayName() string {
	if name := l.Resolve(FieldName); name != "" {
		return name
	}
	return "Unnamed lead"
}

// NormalizeStatus maps any stored status onto the display set.
func NormalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "in_progress", "in progress", "inprogress", "working", "open":
		return StatusInProgress
	case "contacted", "reached", "replied":
		return StatusContacted
	case "proposal", "quoted", "quote sent":
		return StatusProposal
	case "won", "closed won", "signed":
		return StatusWon
	case "lost", "closed lost", "dead":
		return StatusLost
	default:
		return StatusNew
	}
}

// ClampScore bounds an extracted score to the 0-10 scale.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

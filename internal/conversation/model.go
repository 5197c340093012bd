package conversation

import (
	"strings"
	"time"
)

// Participant types. Vendors sell wedding services, planning users are couples
// organizing their own wedding.
const (
	UserTypeVendor   = "vendor"
	UserTypePlanning = "planning"
)

// Canonical conversation statuses. Historical rows carry free-text variants
// ("open", "in progress", "closed"); NormalizeStatus folds them in on read.
const (
	StatusNew        = "new"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleHuman     = "human" // admin takeover reply
)

// Conversation is a durable record of one visitor's dialogue thread.
type Conversation struct {
	ID             string    `json:"id"`
	UserType       string    `json:"user_type"`
	Status         string    `json:"status"`
	FirstMessage   string    `json:"first_message"`
	LastMessage    string    `json:"last_message"`
	ContactName    string    `json:"contact_name,omitempty"`
	ContactEmail   string    `json:"contact_email,omitempty"`
	ContactPhone   string    `json:"contact_phone,omitempty"`
	ContactCompany string    `json:"contact_company,omitempty"`
	WeddingDate    string    `json:"wedding_date,omitempty"`
	LeadID         *string   `json:"lead_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Message is one append-only turn within a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// NormalizeStatus maps any raw stored status onto the canonical set.
// Unknown values count as new so every row lands in exactly one bucket.
func NormalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StatusInProgress, "in progress", "inprogress", "in-progress":
		return StatusInProgress
	case StatusDone, "closed", "complete", "completed", "won", "lost":
		return StatusDone
	default:
		return StatusNew
	}
}

// IsActive reports whether a raw status belongs in the live-chat queue:
// anything not yet done.
func IsActive(raw string) bool {
	return NormalizeStatus(raw) != StatusDone
}

// NormalizeUserType folds participant-role aliases onto the stored enum.
// The chat widget speaks of "couple" where the store says "planning".
func NormalizeUserType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case UserTypeVendor:
		return UserTypeVendor
	default:
		return UserTypePlanning
	}
}

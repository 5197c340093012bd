package conversation

import "errors"

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrNoUserMessage is returned when a reply is requested for a history
	// that contains no user turn.
	ErrNoUserMessage = errors.New("no user message in history")

	// ErrEmptyMessage is returned for whitespace-only message bodies.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrStoreNotConfigured is returned when the relational store has no
	// credentials. Surfaced as a "not configured" state, never a crash.
	ErrStoreNotConfigured = errors.New("conversation store not configured")

	// ErrAssistantNotConfigured is returned before any LLM call when no
	// provider credentials are present.
	ErrAssistantNotConfigured = errors.New("assistant not configured")
)

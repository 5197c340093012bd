package leads

import "errors"

var (
	// ErrNotFound is returned when a lead does not exist.
	ErrNotFound = errors.New("lead not found")

	// ErrLeadExists is returned when a lead already references the
	// conversation. Callers resolve it to the existing lead, never surface
	// it to the end user as a failure.
	ErrLeadExists = errors.New("lead already exists for conversation")

	// ErrStoreNotConfigured is returned when the relational store has no
	// credentials.
	ErrStoreNotConfigured = errors.New("lead store not configured")
)

package conversation

import "strings"

// ListFilter narrows a loaded conversation list the way the admin console
// does: by participant type, normalized status, and free-text search.
type ListFilter struct {
	UserType string // "vendor", "planning" or "" for all
	Status   string // canonical or legacy value, "" for all
	Query    string // case-insensitive substring over message/contact fields
}

// Filter applies the filter to an already-loaded list. Status comparison runs
// on normalized values so legacy rows ("in progress") match "in_progress".
func Filter(convs []*Conversation, f ListFilter) []*Conversation {
	wantStatus := ""
	if f.Status != "" {
		wantStatus = NormalizeStatus(f.Status)
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]*Conversation, 0, len(convs))
	for _, conv := range convs {
		if f.UserType != "" && conv.UserType != f.UserType {
			continue
		}
		if wantStatus != "" && NormalizeStatus(conv.Status) != wantStatus {
			continue
		}
		if query != "" && !matchesQuery(conv, query) {
			continue
		}
		out = append(out, conv)
	}
	return out
}

func matchesQuery(conv *Conversation, query string) bool {
	for _, field := range []string{
		conv.FirstMessage,
		conv.LastMessage,
		conv.ContactName,
		conv.ContactEmail,
		conv.ContactPhone,
		conv.ContactCompany,
	} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

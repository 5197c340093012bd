package assistant

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Metadata block delimiters. Matching is case-insensitive because models
// occasionally change the casing.
const (
	MetadataOpen  = "---LEAD DATA---"
	MetadataClose = "---END LEAD DATA---"
)

// LeadMetadata is the structured qualification extracted from a reply.
type LeadMetadata struct {
	Score       int    `json:"score"`
	Category    string `json:"category,omitempty"`
	Location    string `json:"location,omitempty"`
	Budget      string `json:"budget,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Company     string `json:"company,omitempty"`
	WeddingDate string `json:"wedding_date,omitempty"`
	NextStep    string `json:"next_step,omitempty"`
}

// ParseReply splits a raw model response into the visible reply and the
// metadata block. Parsing is lenient: a missing block or malformed JSON
// degrades to empty metadata, it never fails the reply.
func ParseReply(raw string) (reply string, meta LeadMetadata, fields map[string]any) {
	fields = map[string]any{}

	// The delimiters are pure ASCII. Lowercase only ASCII bytes when
	// building the haystack: full Unicode lowercasing can change byte
	// lengths (İ, Ⱥ) and would make these indexes invalid in raw.
	openIdx := strings.Index(lowerASCII(raw), lowerASCII(MetadataOpen))
	if openIdx < 0 {
		return strings.TrimSpace(raw), meta, fields
	}

	reply = strings.TrimSpace(raw[:openIdx])

	rest := raw[openIdx+len(MetadataOpen):]
	if closeIdx := strings.Index(lowerASCII(rest), lowerASCII(MetadataClose)); closeIdx >= 0 {
		rest = rest[:closeIdx]
	}

	// The block should be a single JSON object; tolerate prose around it.
	start := strings.Index(rest, "{")
	end := strings.LastIndex(rest, "}")
	if start < 0 || end <= start {
		return reply, meta, fields
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(rest[start:end+1]), &parsed); err != nil {
		return reply, meta, fields
	}
	for k, v := range parsed {
		if v != nil {
			fields[k] = v
		}
	}

	meta = LeadMetadata{
		Score:       coerceScore(fields["score"]),
		Category:    coerceString(fields["category"]),
		Location:    coerceString(fields["location"]),
		Budget:      coerceString(fields["budget"]),
		Name:        coerceString(fields["name"]),
		Email:       coerceString(fields["email"]),
		Phone:       coerceString(fields["phone"]),
		Company:     coerceString(fields["company"]),
		WeddingDate: coerceString(fields["wedding_date"]),
		NextStep:    coerceString(fields["next_step"]),
	}
	return reply, meta, fields
}

// Attrs returns the metadata as a stored attribute bag for the lead record.
func (m LeadMetadata) Attrs() map[string]string {
	attrs := map[string]string{}
	put := func(key, value string) {
		if value != "" {
			attrs[key] = value
		}
	}
	put("name", m.Name)
	put("category", m.Category)
	put("location", m.Location)
	put("budget", m.Budget)
	put("email", m.Email)
	put("phone", m.Phone)
	put("company", m.Company)
	put("wedding_date", m.WeddingDate)
	return attrs
}

// IsZero reports whether nothing was extracted.
func (m LeadMetadata) IsZero() bool {
	return m == LeadMetadata{}
}

// lowerASCII folds A-Z only, leaving every other byte (including multi-byte
// runes) untouched so the result is offset-compatible with the input.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func coerceScore(v any) int {
	switch t := v.(type) {
	case float64:
		return clamp(int(t))
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return clamp(n)
		}
	}
	return 0
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}

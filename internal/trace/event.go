package trace

import "strings"

const (
	TypePageLoad   = "page-load"
	TypeTabSwitch  = "tab-switch"
	TypeTabRemoval = "tab-removal"
)

// Event is one raw browser-activity record as captured by the extension.
// Anything that is not a page-load, tab-switch, or tab-removal (clicks,
// typing, copy/paste, highlights, or a missing type) is an interaction
// event and never opens or closes a session group on its own.
type Event struct {
	Type      string         `json:"type"`
	TabID     *int64         `json:"tabId,omitempty"`
	URL       string         `json:"url,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Markdown returns the full-page text extract carried by page-load events.
func (e Event) Markdown() string {
	if e.Payload == nil {
		return ""
	}
	if markdown, ok := e.Payload["markdown"].(string); ok {
		return markdown
	}
	return ""
}

// BaseURL reduces a URL to its scheme+host, the comparison key for session
// group boundaries. URLs without a scheme reduce to their first path segment.
// An empty URL has no base URL; nil compares equal to nil, so consecutive
// page-loads without URLs stay in the same group.
func BaseURL(raw string) *string {
	if raw == "" {
		return nil
	}
	if scheme, rest, ok := strings.Cut(raw, "://"); ok {
		host, _, _ := strings.Cut(rest, "/")
		base := scheme + "://" + host
		return &base
	}
	base, _, _ := strings.Cut(raw, "/")
	return &base
}

// SameBaseURL reports whether two base URLs match, treating nil as a
// stable value equal only to itself.
func SameBaseURL(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

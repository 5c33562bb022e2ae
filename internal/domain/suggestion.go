package domain

import "time"

// Status is the lifecycle position of a Suggestion.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDismissed Status = "dismissed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDismissed || s == StatusExpired
}

// Source is a piece of web evidence cited by a Suggestion.
type Source struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Suggestion is a citation-backed continuation of the user's draft.
//
// Every field except Status is fixed once the assembler builds it.
// Status is only moved by the owning session, and never again after it
// reaches a terminal value.
type Suggestion struct {
	// ─────────────────────────────
	// Identity & content (immutable)
	// ─────────────────────────────

	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`

	// Sources keeps the retriever order, most relevant first.
	Sources []Source `json:"sources"`

	// ─────────────────────────────
	// Lifecycle (owned by the session)
	// ─────────────────────────────

	Status Status `json:"status"`
}

// WithStatus returns a copy of s carrying the new status. Sources are
// copied so the caller never shares backing arrays with the original.
func (s Suggestion) WithStatus(st Status) Suggestion {
	out := s
	out.Status = st
	out.Sources = append([]Source(nil), s.Sources...)
	return out
}

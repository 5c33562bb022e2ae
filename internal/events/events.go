// Package events carries session notifications to the editor.
package events

import (
	"errors"
	"time"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// Type names an event on the wire.
type Type string

const (
	TypeSuggestion         Type = "suggestion"
	TypeQuotaExceeded      Type = "quota_exceeded"
	TypeServiceUnavailable Type = "service_unavailable"
	TypeSuggestionStatus   Type = "suggestion_status"
	TypeModeChanged        Type = "mode_changed"
	TypeSessionEnded       Type = "session_ended"
)

// Event is a single notification for one editing session. Only the
// fields relevant to Type are set.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`

	Suggestion *domain.Suggestion `json:"suggestion,omitempty"`

	UserID  string     `json:"user_id,omitempty"`
	ResetAt *time.Time `json:"reset_at,omitempty"`

	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`

	SuggestionID string        `json:"suggestion_id,omitempty"`
	Status       domain.Status `json:"status,omitempty"`
	Mode         domain.Mode   `json:"mode,omitempty"`
}

// Sink receives session events.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

func Delivered(sessionID string, s domain.Suggestion) Event {
	return Event{Type: TypeSuggestion, SessionID: sessionID, At: s.CreatedAt, Suggestion: &s}
}

func QuotaExceeded(sessionID, userID string, resetAt, at time.Time) Event {
	return Event{
		Type:      TypeQuotaExceeded,
		SessionID: sessionID,
		At:        at,
		UserID:    userID,
		ResetAt:   &resetAt,
		Message:   domain.UserMessage(domain.ErrQuotaExceeded),
	}
}

// Unavailable reports an infrastructural failure. Reason is
// "not_configured" when the search backend is missing, otherwise the
// assembly kind.
func Unavailable(sessionID string, err error, at time.Time) Event {
	reason := string(domain.KindGenerationUnavailable)
	var ae *domain.AssemblyError
	if errors.As(err, &ae) {
		reason = string(ae.Kind)
		if ae.NotConfigured {
			reason = "not_configured"
		}
	}
	msg := domain.UserMessage(err)
	if msg == "" {
		msg = domain.UserMessage(domain.ErrGenerationUnavailable)
	}
	return Event{
		Type:      TypeServiceUnavailable,
		SessionID: sessionID,
		At:        at,
		Reason:    reason,
		Message:   msg,
	}
}

func StatusChanged(sessionID, suggestionID string, st domain.Status, at time.Time) Event {
	return Event{Type: TypeSuggestionStatus, SessionID: sessionID, At: at, SuggestionID: suggestionID, Status: st}
}

func ModeChanged(sessionID string, m domain.Mode, at time.Time) Event {
	return Event{Type: TypeModeChanged, SessionID: sessionID, At: at, Mode: m}
}

func Ended(sessionID string, at time.Time) Event {
	return Event{Type: TypeSessionEnded, SessionID: sessionID, At: at}
}

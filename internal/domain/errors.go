package domain

import (
	"errors"
	"fmt"
)

// Failure taxonomy surfaced to sessions and the HTTP layer. Provider
// errors are converted into these at the assembler boundary.
var (
	ErrQuotaExceeded         = errors.New("daily suggestion quota exceeded")
	ErrRetrievalUnavailable  = errors.New("search service unavailable")
	ErrGenerationUnavailable = errors.New("continuation generator unavailable")
	ErrLowConfidence         = errors.New("continuation confidence below threshold")
	ErrStaleSuggestion       = errors.New("suggestion is not the current pending suggestion")

	ErrSessionClosed     = errors.New("editing session has ended")
	ErrSessionNotFound   = errors.New("editing session not found")
	ErrManualUnavailable = errors.New("manual continuation is available after the first suggestion")
	ErrRequestInFlight   = errors.New("a suggestion request is already in flight")
	ErrMissingIdentity   = errors.New("no authenticated user")
	ErrEmptyDraft        = errors.New("draft has no text to continue")
)

// AssemblyKind classifies why assembly produced no suggestion.
type AssemblyKind string

const (
	KindRetrievalUnavailable  AssemblyKind = "retrieval_unavailable"
	KindGenerationUnavailable AssemblyKind = "generation_unavailable"
	KindLowConfidence         AssemblyKind = "low_confidence"
)

// AssemblyError is the only error type the assembler returns.
type AssemblyError struct {
	Kind AssemblyKind

	// NotConfigured is set when the search backend has no endpoint or
	// credentials, as opposed to being unreachable.
	NotConfigured bool

	// Confidence carries the rejected score for KindLowConfidence.
	Confidence float64

	Cause error
}

func (e *AssemblyError) Error() string {
	switch {
	case e.Kind == KindLowConfidence:
		return fmt.Sprintf("%s (%.2f)", ErrLowConfidence, e.Confidence)
	case e.Kind == KindRetrievalUnavailable && e.NotConfigured:
		return "search service not configured"
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.sentinel(), e.Cause)
	default:
		return e.sentinel().Error()
	}
}

func (e *AssemblyError) Unwrap() error { return e.Cause }

// Is lets errors.Is match the taxonomy sentinels.
func (e *AssemblyError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *AssemblyError) sentinel() error {
	switch e.Kind {
	case KindRetrievalUnavailable:
		return ErrRetrievalUnavailable
	case KindLowConfidence:
		return ErrLowConfidence
	default:
		return ErrGenerationUnavailable
	}
}

// IsInfrastructural reports failures that refund quota and keep the
// session in automatic mode.
func IsInfrastructural(err error) bool {
	return errors.Is(err, ErrRetrievalUnavailable) || errors.Is(err, ErrGenerationUnavailable)
}

// UserMessage is the text shown to the editor for a failed request. An
// empty string means nothing should be surfaced.
func UserMessage(err error) string {
	var ae *AssemblyError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExceeded):
		return "Daily suggestion limit reached."
	case errors.As(err, &ae) && ae.NotConfigured:
		return "Search service not configured."
	case errors.Is(err, ErrRetrievalUnavailable):
		return "Search service unavailable, try again shortly."
	case errors.Is(err, ErrGenerationUnavailable):
		return "Writing assistant unavailable, try again shortly."
	default:
		return ""
	}
}

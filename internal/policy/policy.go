// Package policy holds the tunable suggestion options and the YAML file
// that can override them at runtime.
package policy

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Policy is the set of options that govern when and how suggestions are
// produced. A session captures the policy current at its creation.
type Policy struct {
	MinWordCount        int           // words required before an automatic trigger
	Debounce            time.Duration // quiescence required after the last edit
	ConfidenceThreshold float64       // suggestions scoring below are discarded
	DailyQuota          int           // requests per user per quota day
	EvidenceK           int           // sources requested from the retriever
	SuggestionTTL       time.Duration // 0 => pending suggestions never expire on their own
	QueryMaxWords       int           // trailing words used for the search query
}

// Default returns the product defaults.
func Default() Policy {
	return Policy{
		MinWordCount:        5,
		Debounce:            5 * time.Second,
		ConfidenceThreshold: 0.70,
		DailyQuota:          50,
		EvidenceK:           3,
		SuggestionTTL:       0,
		QueryMaxWords:       32,
	}
}

// Validate rejects values the session machinery cannot honour.
func (p Policy) Validate() error {
	switch {
	case p.MinWordCount < 1:
		return fmt.Errorf("min word count must be >= 1, got %d", p.MinWordCount)
	case p.Debounce <= 0:
		return fmt.Errorf("debounce must be > 0, got %v", p.Debounce)
	case p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1:
		return fmt.Errorf("confidence threshold must be within [0,1], got %v", p.ConfidenceThreshold)
	case p.DailyQuota < 0:
		return fmt.Errorf("daily quota must be >= 0, got %d", p.DailyQuota)
	case p.EvidenceK < 1:
		return fmt.Errorf("evidence k must be >= 1, got %d", p.EvidenceK)
	case p.SuggestionTTL < 0:
		return fmt.Errorf("suggestion ttl must be >= 0, got %v", p.SuggestionTTL)
	case p.QueryMaxWords < 1:
		return fmt.Errorf("query max words must be >= 1, got %d", p.QueryMaxWords)
	}
	return nil
}

// Holder publishes the current Policy to concurrent readers.
type Holder struct {
	current  atomic.Pointer[Policy]
	loadedAt atomic.Int64
}

// NewHolder returns a Holder seeded with p.
func NewHolder(p Policy) *Holder {
	h := &Holder{}
	h.Store(p)
	return h
}

// Load returns the current policy.
func (h *Holder) Load() Policy {
	return *h.current.Load()
}

// Store replaces the current policy.
func (h *Holder) Store(p Policy) {
	h.current.Store(&p)
	h.loadedAt.Store(time.Now().UnixNano())
}

// LoadedAt returns when the policy was last replaced.
func (h *Holder) LoadedAt() time.Time {
	return time.Unix(0, h.loadedAt.Load())
}

// Package evidence looks up web sources that back a continuation.
package evidence

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// ErrNotConfigured is returned when no search endpoint or key was set up.
var ErrNotConfigured = errors.New("search service not configured")

// Retriever returns up to k sources for query, most relevant first.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]domain.Source, error)
	Name() string
}

// Configured reports whether r can serve searches at all. Used by /infra.
func Configured(r Retriever) bool {
	if r == nil {
		return false
	}
	if c, ok := r.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

func limit(sources []domain.Source, k int) []domain.Source {
	if k > 0 && len(sources) > k {
		return sources[:k]
	}
	return sources
}

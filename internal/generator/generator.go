// Package generator produces draft continuations from a language model.
package generator

import (
	"context"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// Continuation is a model proposal for the next words of a draft.
type Continuation struct {
	Text       string
	Confidence float64 // clamped to [0,1]
}

// Generator continues text using the given evidence.
type Generator interface {
	Generate(ctx context.Context, text string, sources []domain.Source) (Continuation, error)
	Name() string
}

// Settings are shared by the model backed generators.
type Settings struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

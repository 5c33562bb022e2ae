package generator

import (
	"context"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// Mock returns a canned continuation. With an empty Text it cites the
// first source, which keeps local runs useful without a model key.
type Mock struct {
	Text       string
	Confidence float64
	Err        error

	mu    sync.Mutex
	calls int
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Generate(ctx context.Context, _ string, sources []domain.Source) (Continuation, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Continuation{}, err
	}
	if m.Err != nil {
		return Continuation{}, m.Err
	}

	text := m.Text
	if text == "" {
		text = "There is more to say about this."
		if len(sources) > 0 {
			text = "As " + strings.TrimSpace(sources[0].Title) + " points out, there is more to it."
		}
	}
	return Continuation{Text: text, Confidence: clamp(m.Confidence)}, nil
}

// Calls returns how many times Generate ran.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

package evidence

import (
	"context"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// Static serves a fixed list of sources. Err, when set, is returned
// instead. Used for local runs and tests.
type Static struct {
	Sources []domain.Source
	Err     error
}

func (s *Static) Name() string { return "static" }

func (s *Static) Search(ctx context.Context, _ string, k int) ([]domain.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := append([]domain.Source(nil), s.Sources...)
	return limit(out, k), nil
}

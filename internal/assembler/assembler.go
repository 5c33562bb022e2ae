// Package assembler turns a draft into a scored, citation backed
// Suggestion. Every failure leaves this package as a
// *domain.AssemblyError; provider errors never cross it raw.
package assembler

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/cowrite/internal/clock"
	"github.com/MrSnakeDoc/cowrite/internal/domain"
	"github.com/MrSnakeDoc/cowrite/internal/evidence"
	"github.com/MrSnakeDoc/cowrite/internal/generator"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
	"github.com/MrSnakeDoc/cowrite/internal/policy"
)

// Options are the policy values assembly depends on.
type Options struct {
	ConfidenceThreshold float64
	EvidenceK           int
	QueryMaxWords       int
}

// OptionsFrom extracts assembly options from p.
func OptionsFrom(p policy.Policy) Options {
	return Options{
		ConfidenceThreshold: p.ConfidenceThreshold,
		EvidenceK:           p.EvidenceK,
		QueryMaxWords:       p.QueryMaxWords,
	}
}

// Assembler runs query -> retrieve -> generate -> threshold. It performs
// no retries.
type Assembler struct {
	retriever evidence.Retriever
	generator generator.Generator
	clock     clock.Clock
	log       logger.Logger
	opts      Options
	newID     func() string
}

func New(r evidence.Retriever, g generator.Generator, clk clock.Clock, log logger.Logger, opts Options) *Assembler {
	return &Assembler{
		retriever: r,
		generator: g,
		clock:     clk,
		log:       log,
		opts:      opts,
		newID:     uuid.NewString,
	}
}

// With returns a copy of a using opts.
func (a *Assembler) With(opts Options) *Assembler {
	cp := *a
	cp.opts = opts
	return &cp
}

// Options returns the options a runs with.
func (a *Assembler) Options() Options { return a.opts }

// Assemble builds a PENDING suggestion for draft.
func (a *Assembler) Assemble(ctx context.Context, draft, userID string) (domain.Suggestion, error) {
	start := a.clock.Now()
	query := domain.DeriveSearchQuery(draft, a.opts.QueryMaxWords)

	var sources []domain.Source
	if query != "" {
		found, err := a.retriever.Search(ctx, query, a.opts.EvidenceK)
		if err != nil {
			return domain.Suggestion{}, &domain.AssemblyError{
				Kind:          domain.KindRetrievalUnavailable,
				NotConfigured: errors.Is(err, evidence.ErrNotConfigured),
				Cause:         err,
			}
		}
		sources = found
		if a.opts.EvidenceK > 0 && len(sources) > a.opts.EvidenceK {
			sources = sources[:a.opts.EvidenceK]
		}
	}

	cont, err := a.generator.Generate(ctx, draft, sources)
	if err != nil {
		return domain.Suggestion{}, &domain.AssemblyError{
			Kind:  domain.KindGenerationUnavailable,
			Cause: err,
		}
	}

	if cont.Confidence < a.opts.ConfidenceThreshold {
		a.log.Debug("continuation discarded",
			logger.String("user_id", userID),
			logger.Float64("confidence", cont.Confidence),
			logger.Float64("threshold", a.opts.ConfidenceThreshold))
		return domain.Suggestion{}, &domain.AssemblyError{
			Kind:       domain.KindLowConfidence,
			Confidence: cont.Confidence,
		}
	}

	now := a.clock.Now()
	s := domain.Suggestion{
		ID:         a.newID(),
		Text:       cont.Text,
		Confidence: cont.Confidence,
		CreatedAt:  now,
		Sources:    append([]domain.Source(nil), sources...),
		Status:     domain.StatusPending,
	}

	a.log.Debug("suggestion assembled",
		logger.String("user_id", userID),
		logger.String("suggestion_id", s.ID),
		logger.Int("sources", len(s.Sources)),
		logger.Float64("confidence", s.Confidence),
		logger.Duration("elapsed", now.Sub(start)))
	return s, nil
}

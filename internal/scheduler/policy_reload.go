package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MrSnakeDoc/cowrite/internal/logger"
	"github.com/MrSnakeDoc/cowrite/internal/policy"
)

// LimitSetter is a quota ledger whose daily limit can change at runtime.
type LimitSetter interface {
	SetLimit(limit int)
}

// PolicyReloader re-reads the policy file on a ticker and on demand, and
// publishes the result to the holder. New sessions pick it up; running
// sessions keep the policy they started with.
type PolicyReloader struct {
	loader        *policy.Loader
	base          policy.Policy
	holder        *policy.Holder
	ledgers       []LimitSetter
	logger        logger.Logger
	interval      time.Duration
	clock         clockwork.Clock
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewPolicyReloader creates a reloader. base holds the values from the
// environment; the file overrides them key by key.
func NewPolicyReloader(
	policyFile string,
	base policy.Policy,
	holder *policy.Holder,
	log logger.Logger,
	interval time.Duration,
	clk clockwork.Clock,
	manualTrigger chan struct{},
	ledgers ...LimitSetter,
) *PolicyReloader {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &PolicyReloader{
		loader:        policy.NewLoader(policyFile),
		base:          base,
		holder:        holder,
		ledgers:       ledgers,
		logger:        log,
		interval:      interval,
		clock:         clk,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the file once, then keeps reloading until Stop or ctx.
func (pr *PolicyReloader) Start(ctx context.Context) error {
	if err := pr.Reload(ctx); err != nil {
		return fmt.Errorf("initial policy load failed: %w", err)
	}

	ticker := pr.clock.NewTicker(pr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if err := pr.Reload(ctx); err != nil {
					pr.logger.Error("failed to reload policy", logger.Error(err))
				}
			case <-pr.manualTrigger:
				pr.logger.Info("manual policy reload triggered")
				if err := pr.Reload(ctx); err != nil {
					pr.logger.Error("failed to reload policy", logger.Error(err))
				}
			case <-pr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (pr *PolicyReloader) Stop() {
	close(pr.stopCh)
}

// Reload applies the policy file to the base policy. On error the
// current policy stays in place.
func (pr *PolicyReloader) Reload(_ context.Context) error {
	p, err := pr.loader.Load(pr.base)
	if err != nil {
		return err
	}

	prev := pr.holder.Load()
	pr.holder.Store(p)
	for _, l := range pr.ledgers {
		l.SetLimit(p.DailyQuota)
	}

	if prev != p {
		pr.logger.Info("policy updated",
			logger.String("file", pr.loader.Path()),
			logger.Int("min_word_count", p.MinWordCount),
			logger.Duration("debounce", p.Debounce),
			logger.Float64("confidence_threshold", p.ConfidenceThreshold),
			logger.Int("daily_quota", p.DailyQuota),
			logger.Int("evidence_k", p.EvidenceK))
	}
	return nil
}

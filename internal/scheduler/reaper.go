package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MrSnakeDoc/cowrite/internal/logger"
)

const (
	// DefaultIdleTTL is how long a session may go without editor activity
	DefaultIdleTTL = 30 * time.Minute
)

// SessionEnder ends sessions that have been idle too long.
type SessionEnder interface {
	EndIdle(now time.Time, idle time.Duration) int
}

// QuotaRotator drops quota records of past days.
type QuotaRotator interface {
	Rotate(now time.Time) int
}

// Reaper ends abandoned sessions and rotates in-process quota records.
type Reaper struct {
	sessions SessionEnder
	quota    QuotaRotator // nil when quota lives in redis
	logger   logger.Logger
	interval time.Duration
	idleTTL  time.Duration
	clock    clockwork.Clock
	stopCh   chan struct{}
}

// NewReaper creates a new reaper
func NewReaper(
	sessions SessionEnder,
	quota QuotaRotator,
	log logger.Logger,
	interval time.Duration,
	idleTTL time.Duration,
	clk clockwork.Clock,
) *Reaper {
	if idleTTL == 0 {
		idleTTL = DefaultIdleTTL
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	return &Reaper{
		sessions: sessions,
		quota:    quota,
		logger:   log,
		interval: interval,
		idleTTL:  idleTTL,
		clock:    clk,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (r *Reaper) Start(ctx context.Context) {
	r.Sweep()

	ticker := r.clock.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				r.Sweep()
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the reaper
func (r *Reaper) Stop() {
	close(r.stopCh)
}

// Sweep runs one pass and reports what it removed.
func (r *Reaper) Sweep() (sessions, records int) {
	now := r.clock.Now()

	sessions = r.sessions.EndIdle(now, r.idleTTL)
	if r.quota != nil {
		records = r.quota.Rotate(now)
	}

	if sessions > 0 || records > 0 {
		r.logger.Info("reaper sweep completed",
			logger.Int("sessions_ended", sessions),
			logger.Int("quota_records_rotated", records))
	} else {
		r.logger.Debug("reaper sweep found nothing to remove")
	}
	return sessions, records
}

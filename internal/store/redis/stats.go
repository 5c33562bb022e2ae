package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// OutcomeStats counts what happened to a user's suggestions on one day
type OutcomeStats struct {
	UserID    string `json:"user_id"`
	Date      string `json:"date"`
	Delivered int64  `json:"delivered"`
	Accepted  int64  `json:"accepted"`
	Dismissed int64  `json:"dismissed"`
	Expired   int64  `json:"expired"`
}

const fieldDelivered = "delivered"

// RecordDelivered counts a suggestion shown to the user
func (s *Store) RecordDelivered(ctx context.Context, userID, date string) error {
	return s.incrOutcome(ctx, userID, date, fieldDelivered)
}

// RecordOutcome counts a suggestion reaching a terminal status
func (s *Store) RecordOutcome(ctx context.Context, userID, date string, status domain.Status) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	return s.incrOutcome(ctx, userID, date, string(status))
}

func (s *Store) incrOutcome(ctx context.Context, userID, date, field string) error {
	key := StatsKey(userID, date)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	pipe.Expire(ctx, key, DefaultStatsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record %s outcome: %w", field, err)
	}
	return nil
}

// GetOutcomeStats retrieves a user's counters for one day
func (s *Store) GetOutcomeStats(ctx context.Context, userID, date string) (OutcomeStats, error) {
	stats := OutcomeStats{UserID: userID, Date: date}

	values, err := s.client.HGetAll(ctx, StatsKey(userID, date)).Result()
	if err != nil {
		return stats, fmt.Errorf("failed to get outcome stats: %w", err)
	}

	for field, raw := range values {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch field {
		case fieldDelivered:
			stats.Delivered = n
		case string(domain.StatusAccepted):
			stats.Accepted = n
		case string(domain.StatusDismissed):
			stats.Dismissed = n
		case string(domain.StatusExpired):
			stats.Expired = n
		}
	}
	return stats, nil
}

// OutcomeRecorder adapts the store to the session's outcome hook,
// bucketing by the quota day of the event.
type OutcomeRecorder struct {
	Store *Store
	Day   func(time.Time) string
}

// Delivered implements the session outcome hook
func (r OutcomeRecorder) Delivered(ctx context.Context, userID string, at time.Time) error {
	return r.Store.RecordDelivered(ctx, userID, r.Day(at))
}

// Resolved implements the session outcome hook
func (r OutcomeRecorder) Resolved(ctx context.Context, userID string, status domain.Status, at time.Time) error {
	return r.Store.RecordOutcome(ctx, userID, r.Day(at), status)
}

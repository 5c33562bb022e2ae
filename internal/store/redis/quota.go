package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
	"github.com/MrSnakeDoc/cowrite/internal/quota"
)

// consumeScript increments the counter only while it is below the limit.
// Redis runs scripts atomically, so concurrent callers for the same key
// are serialized without a global lock.
//
// KEYS[1] quota key, ARGV[1] limit, ARGV[2] expire-at unix seconds.
// Returns {allowed(0|1), count}.
var consumeScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if count >= limit then
  return {0, count}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('EXPIREAT', KEYS[1], ARGV[2])
end
return {1, count}
`)

// refundScript decrements the counter but never below zero.
var refundScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count <= 0 then
  return 0
end
return redis.call('DECR', KEYS[1])
`)

// QuotaLedger is a quota.Ledger shared by every instance of the service.
type QuotaLedger struct {
	store  *Store
	window quota.Window
	limit  atomic.Int64
	// grace keeps a day's key around after reset so late refunds land
	grace time.Duration
}

// NewQuotaLedger returns a Redis-backed ledger.
func NewQuotaLedger(store *Store, window quota.Window, limit int) *QuotaLedger {
	l := &QuotaLedger{store: store, window: window, grace: time.Hour}
	l.SetLimit(limit)
	return l
}

// SetLimit changes the daily limit for subsequent calls.
func (l *QuotaLedger) SetLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	l.limit.Store(int64(limit))
}

// TryConsume takes one unit from userID's budget for the day of now
func (l *QuotaLedger) TryConsume(ctx context.Context, userID string, now time.Time) (quota.Decision, error) {
	if userID == "" {
		return quota.Decision{}, domain.ErrMissingIdentity
	}

	date := l.window.Day(now)
	resetAt := l.window.ResetAt(now)
	limit := int(l.limit.Load())

	res, err := consumeScript.Run(ctx, l.store.client,
		[]string{QuotaKey(userID, date)},
		limit, resetAt.Add(l.grace).Unix(),
	).Int64Slice()
	if err != nil {
		return quota.Decision{}, fmt.Errorf("failed to consume quota: %w", err)
	}
	if len(res) != 2 {
		return quota.Decision{}, fmt.Errorf("unexpected quota script reply: %v", res)
	}

	rec := quota.Record{
		UserID:  userID,
		Date:    date,
		Count:   int(res[1]),
		Limit:   limit,
		ResetAt: resetAt,
	}
	if res[0] == 0 {
		return quota.Decision{Allowed: false, Record: rec}, nil
	}
	return quota.Decision{
		Allowed: true,
		Record:  rec,
		Ticket:  quota.Ticket{UserID: userID, Date: date},
	}, nil
}

// Refund gives back a unit taken by TryConsume
func (l *QuotaLedger) Refund(ctx context.Context, t quota.Ticket) error {
	if t.UserID == "" {
		return nil
	}
	if err := refundScript.Run(ctx, l.store.client, []string{QuotaKey(t.UserID, t.Date)}).Err(); err != nil {
		return fmt.Errorf("failed to refund quota: %w", err)
	}
	return nil
}

// Status returns the user's record for the day of now without consuming
func (l *QuotaLedger) Status(ctx context.Context, userID string, now time.Time) (quota.Record, error) {
	if userID == "" {
		return quota.Record{}, domain.ErrMissingIdentity
	}

	date := l.window.Day(now)
	rec := quota.Record{
		UserID:  userID,
		Date:    date,
		Limit:   int(l.limit.Load()),
		ResetAt: l.window.ResetAt(now),
	}

	raw, err := l.store.client.Get(ctx, QuotaKey(userID, date)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return rec, nil
		}
		return rec, fmt.Errorf("failed to read quota: %w", err)
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return rec, fmt.Errorf("corrupt quota counter %q: %w", raw, err)
	}
	rec.Count = count
	return rec, nil
}

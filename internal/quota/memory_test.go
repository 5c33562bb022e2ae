package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

var noon = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func TestTryConsumeUpToLimit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(NewWindow(time.UTC), 3)

	for i := 1; i <= 3; i++ {
		d, err := l.TryConsume(ctx, "alice", noon)
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d should be allowed", i)
		assert.Equal(t, i, d.Record.Count)
	}

	d, err := l.TryConsume(ctx, "alice", noon)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3, d.Record.Count)
	assert.Equal(t, Ticket{}, d.Ticket)
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), d.Record.ResetAt)
}

func TestTryConsumeConcurrentNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	const limit = 50
	l := NewMemoryLedger(NewWindow(time.UTC), limit)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.TryConsume(ctx, "bob", noon)
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed.Load())
	rec, err := l.Status(ctx, "bob", noon)
	require.NoError(t, err)
	assert.Equal(t, limit, rec.Count)
}

func TestUsersAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(NewWindow(time.UTC), 1)

	d, _ := l.TryConsume(ctx, "alice", noon)
	assert.True(t, d.Allowed)
	d, _ = l.TryConsume(ctx, "bob", noon)
	assert.True(t, d.Allowed)
	d, _ = l.TryConsume(ctx, "alice", noon)
	assert.False(t, d.Allowed)
}

func TestRefundTargetsConsumedDay(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(NewWindow(time.UTC), 1)

	d, err := l.TryConsume(ctx, "alice", noon)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	require.NoError(t, l.Refund(ctx, d.Ticket))
	rec, _ := l.Status(ctx, "alice", noon)
	assert.Equal(t, 0, rec.Count)

	// Refunds never go negative.
	require.NoError(t, l.Refund(ctx, d.Ticket))
	rec, _ = l.Status(ctx, "alice", noon)
	assert.Equal(t, 0, rec.Count)

	require.NoError(t, l.Refund(ctx, Ticket{}))
}

func TestDayBoundaryResetsCount(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(NewWindow(time.UTC), 1)

	d, _ := l.TryConsume(ctx, "alice", noon)
	require.True(t, d.Allowed)
	d, _ = l.TryConsume(ctx, "alice", noon.Add(11*time.Hour+59*time.Minute))
	assert.False(t, d.Allowed, "still the same UTC day")

	d, _ = l.TryConsume(ctx, "alice", noon.Add(12*time.Hour))
	assert.True(t, d.Allowed, "new UTC day")
	assert.Equal(t, "2026-10-18", d.Record.Date)
}

func TestConfiguredTimezoneFixesTheDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	w := NewWindow(tokyo)

	// 16:00 UTC on the 17th is already the 18th in Tokyo.
	at := time.Date(2026, 10, 17, 16, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-10-18", w.Day(at))
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, tokyo), w.ResetAt(at))
	assert.True(t, w.ResetAtForDay("2026-10-18").Equal(w.ResetAt(at)))
	assert.True(t, w.ResetAtForDay("garbage").IsZero())
}

func TestRotateDropsPastDays(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(NewWindow(time.UTC), 5)

	_, _ = l.TryConsume(ctx, "alice", noon.Add(-24*time.Hour))
	_, _ = l.TryConsume(ctx, "bob", noon.Add(-48*time.Hour))
	_, _ = l.TryConsume(ctx, "alice", noon)
	require.Equal(t, 3, l.Len())

	assert.Equal(t, 2, l.Rotate(noon))
	assert.Equal(t, 1, l.Len())
}

func TestMissingIdentityRejected(t *testing.T) {
	l := NewMemoryLedger(NewWindow(time.UTC), 5)
	_, err := l.TryConsume(context.Background(), "", noon)
	assert.ErrorIs(t, err, domain.ErrMissingIdentity)
	_, err = l.Status(context.Background(), "", noon)
	assert.ErrorIs(t, err, domain.ErrMissingIdentity)
}

func TestSetLimit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(NewWindow(time.UTC), 0)
	d, _ := l.TryConsume(ctx, "alice", noon)
	assert.False(t, d.Allowed, "zero limit denies everything")

	l.SetLimit(1)
	d, _ = l.TryConsume(ctx, "alice", noon)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Record.Remaining())
}

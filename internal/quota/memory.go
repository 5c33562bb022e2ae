package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

type entry struct {
	mu    sync.Mutex
	count int
}

// MemoryLedger keeps quota records in process. The map lock is only held
// to find or create an entry; counting happens under the entry's own
// lock so different users never contend.
type MemoryLedger struct {
	window Window
	limit  atomic.Int64

	mu      sync.Mutex
	entries map[Ticket]*entry
}

// NewMemoryLedger returns a ledger allowing limit requests per day.
func NewMemoryLedger(window Window, limit int) *MemoryLedger {
	l := &MemoryLedger{
		window:  window,
		entries: make(map[Ticket]*entry, 256),
	}
	l.SetLimit(limit)
	return l
}

// SetLimit changes the daily limit for subsequent calls.
func (l *MemoryLedger) SetLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	l.limit.Store(int64(limit))
}

func (l *MemoryLedger) getEntry(key Ticket) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[key]
	if e == nil {
		e = &entry{}
		l.entries[key] = e
	}
	return e
}

// TryConsume takes one unit from userID's budget for the day of now.
func (l *MemoryLedger) TryConsume(_ context.Context, userID string, now time.Time) (Decision, error) {
	if userID == "" {
		return Decision{}, domain.ErrMissingIdentity
	}

	key := Ticket{UserID: userID, Date: l.window.Day(now)}
	limit := int(l.limit.Load())
	e := l.getEntry(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := Record{
		UserID:  userID,
		Date:    key.Date,
		Count:   e.count,
		Limit:   limit,
		ResetAt: l.window.ResetAt(now),
	}
	if e.count >= limit {
		return Decision{Allowed: false, Record: rec}, nil
	}

	e.count++
	rec.Count = e.count
	return Decision{Allowed: true, Record: rec, Ticket: key}, nil
}

// Refund gives back a unit taken by TryConsume. Refunding an unknown or
// empty ticket is a no-op.
func (l *MemoryLedger) Refund(_ context.Context, t Ticket) error {
	if t.UserID == "" {
		return nil
	}

	l.mu.Lock()
	e := l.entries[t]
	l.mu.Unlock()
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count > 0 {
		e.count--
	}
	return nil
}

// Status returns the user's record for the day of now without consuming.
func (l *MemoryLedger) Status(_ context.Context, userID string, now time.Time) (Record, error) {
	if userID == "" {
		return Record{}, domain.ErrMissingIdentity
	}

	key := Ticket{UserID: userID, Date: l.window.Day(now)}
	rec := Record{
		UserID:  userID,
		Date:    key.Date,
		Limit:   int(l.limit.Load()),
		ResetAt: l.window.ResetAt(now),
	}

	l.mu.Lock()
	e := l.entries[key]
	l.mu.Unlock()
	if e != nil {
		e.mu.Lock()
		rec.Count = e.count
		e.mu.Unlock()
	}
	return rec, nil
}

// Rotate drops records of days before the day of now and returns how
// many were removed.
func (l *MemoryLedger) Rotate(now time.Time) int {
	today := l.window.Day(now)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key := range l.entries {
		if key.Date < today {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked user-days.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Package quota enforces the per-user daily suggestion budget.
package quota

import (
	"context"
	"time"
)

// Record is the state of one user's quota day.
type Record struct {
	UserID  string    `json:"user_id"`
	Date    string    `json:"date"` // YYYY-MM-DD in the ledger's timezone
	Count   int       `json:"count"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns how many requests are left today.
func (r Record) Remaining() int {
	if r.Count >= r.Limit {
		return 0
	}
	return r.Limit - r.Count
}

// Ticket identifies one consumed unit so it can be refunded against the
// day it was taken from, even if the day rolled over meanwhile.
type Ticket struct {
	UserID string
	Date   string
}

// Decision is the outcome of TryConsume. When Allowed is false nothing
// was consumed and Ticket is empty.
type Decision struct {
	Allowed bool
	Record  Record
	Ticket  Ticket
}

// Ledger tracks daily request counts. TryConsume must be atomic per
// user: concurrent calls never push Count past Limit.
type Ledger interface {
	TryConsume(ctx context.Context, userID string, now time.Time) (Decision, error)
	Refund(ctx context.Context, t Ticket) error
	Status(ctx context.Context, userID string, now time.Time) (Record, error)
}

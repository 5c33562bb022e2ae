// Package trigger decides when an editing session should ask for a
// suggestion. It holds no timers and does no I/O: callers feed it edits
// and timer expirations and act on the decisions it returns.
package trigger

import (
	"time"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// Policy is the part of the suggestion policy the controller needs.
type Policy struct {
	MinWordCount int
	Debounce     time.Duration
}

// State is the per-session trigger state.
type State struct {
	Mode             domain.Mode
	LastWordCount    int
	LastEditAt       time.Time
	LastTriggerAt    time.Time
	DebounceDeadline time.Time // zero when nothing is scheduled

	// Generation increments on every edit. A scheduled decision is only
	// valid for the generation it was scheduled under.
	Generation uint64
}

// Schedule is returned by OnTextChanged. When Armed is true the caller
// must evaluate Ready(Generation, ...) once Deadline is reached, and
// drop any earlier schedule.
type Schedule struct {
	Armed      bool
	Deadline   time.Time
	Generation uint64
}

// Controller is the trigger state machine for one editing session. It
// is not safe for concurrent use; the owning session serializes calls.
type Controller struct {
	policy Policy
	state  State
}

// New returns a controller in automatic mode.
func New(p Policy) *Controller {
	return &Controller{
		policy: p,
		state:  State{Mode: domain.ModeAuto},
	}
}

// OnTextChanged records an edit and tells the caller whether to arm the
// debounce timer. Any previously returned Schedule is invalidated.
func (c *Controller) OnTextChanged(text string, cursor int, now time.Time) Schedule {
	_ = cursor // the controller only cares about timing and length

	c.state.Generation++
	c.state.LastWordCount = domain.WordCount(text)
	c.state.LastEditAt = now
	c.state.DebounceDeadline = time.Time{}

	if c.state.Mode != domain.ModeAuto || !HasEnoughWords(c.state, c.policy) {
		return Schedule{Generation: c.state.Generation}
	}

	c.state.DebounceDeadline = now.Add(c.policy.Debounce)
	return Schedule{
		Armed:      true,
		Deadline:   c.state.DebounceDeadline,
		Generation: c.state.Generation,
	}
}

// Ready reports whether an automatic request should fire for the
// schedule of the given generation. pending is true when the session
// already shows a suggestion or has a request in flight.
func (c *Controller) Ready(generation uint64, now time.Time, pending bool) bool {
	s := c.state
	return generation == s.Generation &&
		s.Mode == domain.ModeAuto &&
		!pending &&
		HasEnoughWords(s, c.policy) &&
		IsQuiescent(s, c.policy, now)
}

// MarkFired records that a request was dispatched at now.
func (c *Controller) MarkFired(now time.Time) {
	c.state.LastTriggerAt = now
	c.state.DebounceDeadline = time.Time{}
}

// Manual validates a user initiated request. It is only available once
// the session has switched to manual mode.
func (c *Controller) Manual(now time.Time) error {
	if c.state.Mode != domain.ModeManual {
		return domain.ErrManualUnavailable
	}
	c.MarkFired(now)
	return nil
}

// Observe applies a request outcome and reports whether the mode changed.
func (c *Controller) Observe(ev domain.ModeEvent) bool {
	next := domain.NextMode(c.state.Mode, ev)
	changed := next != c.state.Mode
	c.state.Mode = next
	if next == domain.ModeManual {
		c.state.DebounceDeadline = time.Time{}
	}
	return changed
}

// State returns a copy of the current state.
func (c *Controller) State() State { return c.state }

// HasEnoughWords reports whether the last seen draft meets the word floor.
func HasEnoughWords(s State, p Policy) bool {
	return s.LastWordCount >= p.MinWordCount
}

// IsQuiescent reports whether the debounce period has fully elapsed
// since the most recent edit.
func IsQuiescent(s State, p Policy, now time.Time) bool {
	if s.LastEditAt.IsZero() {
		return false
	}
	return now.Sub(s.LastEditAt) >= p.Debounce
}

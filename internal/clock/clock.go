// Package clock abstracts the time operations the suggestion pipeline
// depends on. Production code injects Real(); tests inject Fake() and
// move time forward explicitly, which keeps debounce tests free of
// sleeps.
package clock

import "time"

// Clock is the subset of the time package used by sessions and the
// assembler.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d, then calls f. The returned Timer can
	// cancel the call with Stop. d must be positive.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable scheduled call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns true if the call stops
// the timer, false if it already fired or was stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

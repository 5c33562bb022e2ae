package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type wallClock struct {
	c clockwork.Clock
}

// Real returns a Clock backed by the system time.
func Real() Clock { return Wrap(clockwork.NewRealClock()) }

// Wrap adapts a clockwork clock. Callbacks run on their own goroutines,
// also when c is a clockwork fake; use FakeClock where callback order
// matters.
func Wrap(c clockwork.Clock) Clock { return wallClock{c: c} }

func (w wallClock) Now() time.Time { return w.c.Now() }

func (w wallClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := w.c.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}

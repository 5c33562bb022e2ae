package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

var (
	t0     = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	policy = Policy{MinWordCount: 5, Debounce: 5 * time.Second}
)

func TestSingleWordNeverArms(t *testing.T) {
	c := New(policy)
	s := c.OnTextChanged("AI", 2, t0)

	assert.False(t, s.Armed)
	assert.False(t, c.Ready(s.Generation, t0.Add(time.Hour), false))
}

func TestDebounceBoundary(t *testing.T) {
	c := New(policy)
	s := c.OnTextChanged("one two three four five", 23, t0)
	require.True(t, s.Armed)
	assert.Equal(t, t0.Add(5*time.Second), s.Deadline)

	assert.False(t, c.Ready(s.Generation, t0.Add(4900*time.Millisecond), false), "4.9s must not fire")
	assert.True(t, c.Ready(s.Generation, t0.Add(5*time.Second), false), "5.0s must fire")
}

func TestNewEditInvalidatesSchedule(t *testing.T) {
	c := New(policy)
	first := c.OnTextChanged("one two three four five", 23, t0)
	second := c.OnTextChanged("one two three four five six", 27, t0.Add(3*time.Second))

	assert.NotEqual(t, first.Generation, second.Generation)
	assert.False(t, c.Ready(first.Generation, t0.Add(5*time.Second), false), "stale schedule fired")
	assert.False(t, c.Ready(second.Generation, t0.Add(7*time.Second), false), "fired before quiescence")
	assert.True(t, c.Ready(second.Generation, t0.Add(8*time.Second), false))
}

func TestPendingSuppressesAutoTrigger(t *testing.T) {
	c := New(policy)
	s := c.OnTextChanged("one two three four five", 23, t0)
	assert.False(t, c.Ready(s.Generation, t0.Add(10*time.Second), true))
}

func TestManualModeNeverArms(t *testing.T) {
	c := New(policy)
	assert.True(t, c.Observe(domain.ModeEventDelivered))
	assert.Equal(t, domain.ModeManual, c.State().Mode)

	s := c.OnTextChanged("one two three four five six seven", 30, t0)
	assert.False(t, s.Armed)
	assert.False(t, c.Ready(s.Generation, t0.Add(time.Minute), false))
}

func TestModeFlipsOnlyOnDelivery(t *testing.T) {
	c := New(policy)

	assert.False(t, c.Observe(domain.ModeEventLowConfidence))
	assert.False(t, c.Observe(domain.ModeEventFailed))
	assert.Equal(t, domain.ModeAuto, c.State().Mode)

	assert.True(t, c.Observe(domain.ModeEventDelivered))
	assert.False(t, c.Observe(domain.ModeEventDelivered), "mode must flip exactly once")
}

func TestManualRequiresManualMode(t *testing.T) {
	c := New(policy)
	assert.ErrorIs(t, c.Manual(t0), domain.ErrManualUnavailable)

	c.Observe(domain.ModeEventDelivered)
	require.NoError(t, c.Manual(t0.Add(time.Second)))
	assert.Equal(t, t0.Add(time.Second), c.State().LastTriggerAt)
}

func TestPredicates(t *testing.T) {
	s := State{LastWordCount: 5, LastEditAt: t0}
	assert.True(t, HasEnoughWords(s, policy))
	assert.False(t, HasEnoughWords(State{LastWordCount: 4}, policy))

	assert.False(t, IsQuiescent(State{}, policy, t0), "no edit yet")
	assert.False(t, IsQuiescent(s, policy, t0.Add(4999*time.Millisecond)))
	assert.True(t, IsQuiescent(s, policy, t0.Add(5*time.Second)))
}

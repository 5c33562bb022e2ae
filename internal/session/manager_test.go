package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/cowrite/internal/clock"
	"github.com/MrSnakeDoc/cowrite/internal/domain"
	"github.com/MrSnakeDoc/cowrite/internal/events"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
	"github.com/MrSnakeDoc/cowrite/internal/policy"
	"github.com/MrSnakeDoc/cowrite/internal/quota"
)

func newManager(clk *clock.FakeClock, holder *policy.Holder, sink events.Sink) (*Manager, *fakeAssembler) {
	asm := &fakeAssembler{}
	m := NewManager(ManagerConfig{
		Policy: holder,
		Ledger: quota.NewMemoryLedger(quota.NewWindow(time.UTC), 50),
		Clock:  clk,
		Sink:   sink,
		Log:    logger.Nop(),
		Assembler: func(policy.Policy) Assembler {
			return asm
		},
	})
	return m, asm
}

func TestManagerOwnership(t *testing.T) {
	m, _ := newManager(clock.Fake(t0), policy.NewHolder(policy.Default()), nil)
	defer m.Close()

	s, err := m.Start("alice")
	require.NoError(t, err)

	got, err := m.Get(s.ID(), "alice")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get(s.ID(), "bob")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, m.End(s.ID(), "bob"), domain.ErrSessionNotFound)

	require.NoError(t, m.End(s.ID(), "alice"))
	assert.True(t, s.Closed())
	_, err = m.Get(s.ID(), "alice")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManagerRejectsMissingIdentity(t *testing.T) {
	m, _ := newManager(clock.Fake(t0), policy.NewHolder(policy.Default()), nil)
	defer m.Close()

	for _, id := range []string{"", "guest", "Default", "ANONYMOUS"} {
		_, err := m.Start(id)
		assert.ErrorIs(t, err, domain.ErrMissingIdentity, "user %q", id)
	}
	assert.Zero(t, m.Len())
}

func TestManagerCapturesPolicyAtStart(t *testing.T) {
	holder := policy.NewHolder(policy.Default())
	m, _ := newManager(clock.Fake(t0), holder, nil)
	defer m.Close()

	before, err := m.Start("alice")
	require.NoError(t, err)

	p := policy.Default()
	p.MinWordCount = 2
	holder.Store(p)

	after, err := m.Start("alice")
	require.NoError(t, err)

	assert.Equal(t, 5, before.Policy().MinWordCount)
	assert.Equal(t, 2, after.Policy().MinWordCount)
}

func TestManagerListAndEndIdle(t *testing.T) {
	clk := clock.Fake(t0)
	m, _ := newManager(clk, policy.NewHolder(policy.Default()), nil)
	defer m.Close()

	a, err := m.Start("alice")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	b, err := m.Start("alice")
	require.NoError(t, err)
	_, err = m.Start("bob")
	require.NoError(t, err)

	list := m.List("alice")
	require.Len(t, list, 2)
	assert.Equal(t, a.ID(), list[0].ID)
	assert.Equal(t, b.ID(), list[1].ID)

	clk.Advance(29 * time.Minute)
	require.NoError(t, b.OnTextChanged("hi", 2))

	clk.Advance(2 * time.Minute)

	// alice's first session and bob's have been idle for over 30m
	ended := m.EndIdle(clk.Now(), 30*time.Minute)
	assert.Equal(t, 2, ended)
	assert.True(t, a.Closed())
	assert.False(t, b.Closed())
	assert.Equal(t, 1, m.Len())
}

func TestManagerCloseEndsEverything(t *testing.T) {
	clk := clock.Fake(t0)
	hub := events.NewHub(8)
	m, asm := newManager(clk, policy.NewHolder(policy.Default()), hub)

	s, err := m.Start("alice")
	require.NoError(t, err)
	ch, cancel := hub.Subscribe(s.ID())
	defer cancel()

	asm.gate = make(chan struct{})
	require.NoError(t, s.OnTextChanged(fiveWords, 0))
	clk.Advance(5 * time.Second)

	m.Close()
	assert.Zero(t, m.Len())
	assert.True(t, s.Closed())

	var last events.Event
	for e := range ch {
		last = e
	}
	assert.Equal(t, events.TypeSessionEnded, last.Type)
}

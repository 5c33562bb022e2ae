package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/cowrite/internal/clock"
	"github.com/MrSnakeDoc/cowrite/internal/domain"
	"github.com/MrSnakeDoc/cowrite/internal/events"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
	"github.com/MrSnakeDoc/cowrite/internal/policy"
	"github.com/MrSnakeDoc/cowrite/internal/quota"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

const fiveWords = "solar panels keep getting cheaper"

// recorder is an events.Sink that keeps everything it sees.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeAssembler returns scripted results. When gate is set each call
// blocks until the gate yields or ctx is cancelled. When entered is set
// each call signals it on arrival.
type fakeAssembler struct {
	mu          sync.Mutex
	calls       int
	inflight    int
	maxInflight int
	err         error
	confidence  float64
	gate        chan struct{}
	entered     chan struct{}
	drafts      []string
}

func (a *fakeAssembler) Assemble(ctx context.Context, draft, _ string) (domain.Suggestion, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	a.inflight++
	if a.inflight > a.maxInflight {
		a.maxInflight = a.inflight
	}
	a.drafts = append(a.drafts, draft)
	gate, entered, err, conf := a.gate, a.entered, a.err, a.confidence
	a.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}

	defer func() {
		a.mu.Lock()
		a.inflight--
		a.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Suggestion{}, &domain.AssemblyError{Kind: domain.KindGenerationUnavailable, Cause: ctx.Err()}
		}
	}
	if err != nil {
		return domain.Suggestion{}, err
	}
	if conf == 0 {
		conf = 0.9
	}
	return domain.Suggestion{
		ID:         fmt.Sprintf("sug-%d", n),
		Text:       "and storage is next.",
		Confidence: conf,
		CreatedAt:  t0,
		Status:     domain.StatusPending,
	}, nil
}

func (a *fakeAssembler) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type outcomeLog struct {
	mu        sync.Mutex
	delivered int
	resolved  []domain.Status
}

func (o *outcomeLog) Delivered(context.Context, string, time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered++
	return nil
}

func (o *outcomeLog) Resolved(_ context.Context, _ string, st domain.Status, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolved = append(o.resolved, st)
	return nil
}

type harness struct {
	s        *Session
	clk      *clock.FakeClock
	ledger   *quota.MemoryLedger
	asm      *fakeAssembler
	sink     *recorder
	outcomes *outcomeLog
}

func newHarness(t *testing.T, mutate func(*policy.Policy)) *harness {
	t.Helper()

	p := policy.Default()
	if mutate != nil {
		mutate(&p)
	}
	h := &harness{
		clk:      clock.Fake(t0),
		ledger:   quota.NewMemoryLedger(quota.NewWindow(time.UTC), p.DailyQuota),
		asm:      &fakeAssembler{},
		sink:     &recorder{},
		outcomes: &outcomeLog{},
	}
	h.s = h.newSession(p, h.asm)
	t.Cleanup(func() {
		h.s.End()
		h.s.Wait()
	})
	return h
}

func (h *harness) newSession(p policy.Policy, a Assembler) *Session {
	return New(Config{
		ID:        "sess-1",
		UserID:    "u1",
		Policy:    p,
		Ledger:    h.ledger,
		Assembler: a,
		Clock:     h.clk,
		Sink:      h.sink,
		Outcomes:  h.outcomes,
		Log:       logger.Nop(),
	})
}

// advance moves the clock and waits for any request it started.
func (h *harness) advance(d time.Duration) {
	h.clk.Advance(d)
	h.s.Wait()
}

func (h *harness) used(t *testing.T) int {
	t.Helper()
	rec, err := h.ledger.Status(context.Background(), "u1", h.clk.Now())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	return rec.Count
}

// deliverFirst drives the session through its first automatic
// suggestion and returns its id.
func (h *harness) deliverFirst(t *testing.T) string {
	t.Helper()
	if err := h.s.OnTextChanged(fiveWords, len(fiveWords)); err != nil {
		t.Fatalf("OnTextChanged() error = %v", err)
	}
	h.advance(5 * time.Second)
	snap := h.s.Snapshot()
	if snap.Current == nil {
		t.Fatal("expected a delivered suggestion")
	}
	return snap.Current.ID
}

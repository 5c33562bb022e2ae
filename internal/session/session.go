// Package session runs one editing session: it feeds edits to the
// trigger controller, owns the debounce timer, dispatches at most one
// assembly at a time and tracks the lifecycle of the shown suggestion.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MrSnakeDoc/cowrite/internal/clock"
	"github.com/MrSnakeDoc/cowrite/internal/domain"
	"github.com/MrSnakeDoc/cowrite/internal/events"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
	"github.com/MrSnakeDoc/cowrite/internal/policy"
	"github.com/MrSnakeDoc/cowrite/internal/quota"
	"github.com/MrSnakeDoc/cowrite/internal/trigger"
)

// Assembler builds a suggestion for a draft. Errors are expected to be
// *domain.AssemblyError values.
type Assembler interface {
	Assemble(ctx context.Context, draft, userID string) (domain.Suggestion, error)
}

// OutcomeRecorder keeps aggregate counts of suggestion outcomes.
type OutcomeRecorder interface {
	Delivered(ctx context.Context, userID string, at time.Time) error
	Resolved(ctx context.Context, userID string, status domain.Status, at time.Time) error
}

// Config wires a Session to its collaborators.
type Config struct {
	ID        string
	UserID    string
	Policy    policy.Policy
	Ledger    quota.Ledger
	Assembler Assembler
	Clock     clock.Clock
	Sink      events.Sink
	Outcomes  OutcomeRecorder // optional
	Log       logger.Logger
}

// Acceptance is what the editor needs to insert an accepted suggestion.
type Acceptance struct {
	Suggestion   domain.Suggestion `json:"suggestion"`
	Text         string            `json:"text"`
	CursorOffset int               `json:"cursor_offset"`
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	Mode             domain.Mode         `json:"mode"`
	State            domain.SessionState `json:"state"`
	WordCount        int                 `json:"word_count"`
	Cursor           int                 `json:"cursor"`
	DebounceDeadline *time.Time          `json:"debounce_deadline,omitempty"`
	Current          *domain.Suggestion  `json:"current,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	LastActivity     time.Time           `json:"last_activity"`
	Closed           bool                `json:"closed"`
}

// Session is safe for concurrent use.
type Session struct {
	id        string
	userID    string
	policy    policy.Policy
	ledger    quota.Ledger
	assembler Assembler
	clock     clock.Clock
	sink      events.Sink
	outcomes  OutcomeRecorder
	log       logger.Logger
	createdAt time.Time

	// base is cancelled when the session ends, aborting any in-flight
	// request.
	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu           sync.Mutex
	trigger      *trigger.Controller
	state        domain.SessionState
	text         string
	cursor       int
	current      *domain.Suggestion
	debounce     *clock.Timer
	expiry       *clock.Timer
	requestSeq   uint64
	closed       bool
	lastActivity time.Time
}

// New starts an editing session in IDLE/AUTO.
func New(cfg Config) *Session {
	base, stop := context.WithCancel(context.Background())
	now := cfg.Clock.Now()

	sink := cfg.Sink
	if sink == nil {
		sink = events.Discard
	}

	return &Session{
		id:        cfg.ID,
		userID:    cfg.UserID,
		policy:    cfg.Policy,
		ledger:    cfg.Ledger,
		assembler: cfg.Assembler,
		clock:     cfg.Clock,
		sink:      sink,
		outcomes:  cfg.Outcomes,
		log: cfg.Log.With(
			logger.String("session_id", cfg.ID),
			logger.String("user_id", cfg.UserID)),
		createdAt: now,
		base:      base,
		stop:      stop,
		trigger: trigger.New(trigger.Policy{
			MinWordCount: cfg.Policy.MinWordCount,
			Debounce:     cfg.Policy.Debounce,
		}),
		state:        domain.StateIdle,
		lastActivity: now,
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// Policy returns the policy captured when the session started.
func (s *Session) Policy() policy.Policy { return s.policy }

// LastActivity returns the time of the last editor call.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// OnTextChanged records an edit. In automatic mode a long enough draft
// (re)arms the debounce timer; any earlier timer is cancelled first.
func (s *Session) OnTextChanged(text string, cursor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}

	now := s.clock.Now()
	s.text = text
	s.cursor = clampCursor(cursor, text)
	s.lastActivity = now

	s.debounce.Stop()
	s.debounce = nil

	sched := s.trigger.OnTextChanged(text, s.cursor, now)
	if !sched.Armed {
		return nil
	}

	gen := sched.Generation
	s.debounce = s.clock.AfterFunc(sched.Deadline.Sub(now), func() {
		s.onDebounce(gen)
	})
	return nil
}

func (s *Session) onDebounce(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	now := s.clock.Now()
	if !s.trigger.Ready(generation, now, s.state != domain.StateIdle) {
		return
	}

	s.trigger.MarkFired(now)
	s.debounce = nil
	s.beginRequest("auto")
}

// RequestContinuation is the user initiated "Continue writing" action.
// It is available once the session is in manual mode. A shown suggestion
// is dismissed and replaced by the new request.
func (s *Session) RequestContinuation() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.state == domain.StateRequesting {
		s.mu.Unlock()
		return domain.ErrRequestInFlight
	}
	if strings.TrimSpace(s.text) == "" {
		s.mu.Unlock()
		return domain.ErrEmptyDraft
	}

	now := s.clock.Now()
	if err := s.trigger.Manual(now); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lastActivity = now

	var superseded *domain.Suggestion
	if s.state == domain.StatePending {
		sup := s.resolveLocked(domain.StatusDismissed, now)
		superseded = &sup
	}
	s.beginRequest("manual")
	s.mu.Unlock()

	if superseded != nil {
		s.recordResolved(*superseded, now)
	}
	return nil
}

// Accept resolves the pending suggestion id as ACCEPTED. The returned
// cursor offset is the editor cursor at acceptance time.
func (s *Session) Accept(id string) (Acceptance, error) {
	s.mu.Lock()
	now := s.clock.Now()
	sug, err := s.resolveCurrent(id, domain.StatusAccepted, now)
	cursor := s.cursor
	s.mu.Unlock()

	if err != nil {
		return Acceptance{}, err
	}
	s.recordResolved(sug, now)
	s.log.Info("suggestion accepted", logger.String("suggestion_id", id))
	return Acceptance{Suggestion: sug, Text: sug.Text, CursorOffset: cursor}, nil
}

// Dismiss resolves the pending suggestion id as DISMISSED.
func (s *Session) Dismiss(id string) (domain.Suggestion, error) {
	s.mu.Lock()
	now := s.clock.Now()
	sug, err := s.resolveCurrent(id, domain.StatusDismissed, now)
	s.mu.Unlock()

	if err != nil {
		return domain.Suggestion{}, err
	}
	s.recordResolved(sug, now)
	return sug, nil
}

// End tears the session down. A shown suggestion expires and an
// in-flight request is cancelled; its result, if any, is discarded.
// End is idempotent.
func (s *Session) End() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	var expired *domain.Suggestion
	if s.state == domain.StatePending {
		sug := s.resolveLocked(domain.StatusExpired, now)
		expired = &sug
	}

	s.closed = true
	s.debounce.Stop()
	s.debounce = nil
	s.expiry.Stop()
	s.expiry = nil
	s.state, _ = domain.NextState(s.state, domain.EventEnd)
	s.stop()
	s.sink.Publish(events.Ended(s.id, now))
	s.mu.Unlock()

	if expired != nil {
		s.recordResolved(*expired, now)
	}
	s.log.Debug("session ended")
}

// Closed reports whether End was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Wait blocks until no request goroutine is running.
func (s *Session) Wait() { s.wg.Wait() }

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.trigger.State()
	snap := Snapshot{
		ID:           s.id,
		UserID:       s.userID,
		Mode:         ts.Mode,
		State:        s.state,
		WordCount:    ts.LastWordCount,
		Cursor:       s.cursor,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		Closed:       s.closed,
	}
	if !ts.DebounceDeadline.IsZero() {
		d := ts.DebounceDeadline
		snap.DebounceDeadline = &d
	}
	if s.current != nil {
		cur := s.current.WithStatus(s.current.Status)
		snap.Current = &cur
	}
	return snap
}

// ─────────────────────────────────────────────────────────────────
// Internals. Methods suffixed Locked, and beginRequest, expect s.mu.
// ─────────────────────────────────────────────────────────────────

func (s *Session) resolveCurrent(id string, st domain.Status, now time.Time) (domain.Suggestion, error) {
	if s.closed {
		return domain.Suggestion{}, domain.ErrSessionClosed
	}
	if s.state != domain.StatePending || s.current == nil || s.current.ID != id {
		return domain.Suggestion{}, domain.ErrStaleSuggestion
	}
	s.lastActivity = now
	sug := s.resolveLocked(st, now)
	s.state, _ = domain.NextState(s.state, domain.EventResolved)
	return sug, nil
}

// resolveLocked moves the current suggestion to a terminal status and
// publishes the change. The caller moves the session state.
func (s *Session) resolveLocked(st domain.Status, now time.Time) domain.Suggestion {
	sug := s.current.WithStatus(st)
	s.current = nil
	s.expiry.Stop()
	s.expiry = nil
	s.sink.Publish(events.StatusChanged(s.id, sug.ID, st, now))
	return sug
}

func (s *Session) beginRequest(origin string) {
	next, ok := domain.NextState(s.state, domain.EventTrigger)
	if !ok {
		return
	}
	s.state = next
	s.requestSeq++

	seq := s.requestSeq
	draft := s.text
	ctx, cancel := context.WithCancel(s.base)

	s.log.Debug("suggestion requested",
		logger.String("origin", origin),
		logger.Int("words", domain.WordCount(draft)))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(ctx, seq, draft)
	}()
}

// isCurrentLocked reports whether seq is still the live request of an open
// session.
func (s *Session) isCurrentLocked(seq uint64) bool {
	return !s.closed && seq == s.requestSeq && s.state == domain.StateRequesting
}

// ledgerTimeout bounds a quota check that no longer follows the session
// context.
const ledgerTimeout = 5 * time.Second

func (s *Session) run(ctx context.Context, seq uint64, draft string) {
	// Ending the session must not abandon an increment the store may
	// already have applied: the ticket has to come back to be refunded.
	consumeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	dec, err := s.ledger.TryConsume(consumeCtx, s.userID, s.clock.Now())
	cancel()
	if err != nil {
		s.finishFailed(seq, err, quota.Ticket{}, false)
		return
	}
	if !dec.Allowed {
		s.finishDenied(seq, dec.Record)
		return
	}

	// Last point at which the request can be abandoned with a refund.
	s.mu.Lock()
	live := s.isCurrentLocked(seq)
	s.mu.Unlock()
	if !live {
		s.refund(ctx, dec.Ticket, "cancelled before dispatch")
		return
	}

	sug, err := s.assembler.Assemble(ctx, draft, s.userID)
	if err != nil {
		s.finishFailed(seq, err, dec.Ticket, true)
		return
	}
	s.finishDelivered(seq, sug)
}

func (s *Session) finishDenied(seq uint64, rec quota.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isCurrentLocked(seq) {
		return
	}
	now := s.clock.Now()
	s.state, _ = domain.NextState(s.state, domain.EventNoSuggestion)
	s.sink.Publish(events.QuotaExceeded(s.id, s.userID, rec.ResetAt, now))
	s.log.Info("suggestion denied by quota",
		logger.Int("count", rec.Count),
		logger.Int("limit", rec.Limit),
		logger.Time("reset_at", rec.ResetAt))
}

// finishFailed handles ledger and assembly errors. dispatched is true
// when the external calls were made. Low confidence keeps the quota
// unit; infrastructural failures give it back.
func (s *Session) finishFailed(seq uint64, err error, ticket quota.Ticket, dispatched bool) {
	s.mu.Lock()
	if !s.isCurrentLocked(seq) {
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	s.state, _ = domain.NextState(s.state, domain.EventNoSuggestion)

	if errors.Is(err, domain.ErrLowConfidence) {
		s.trigger.Observe(domain.ModeEventLowConfidence)
		s.mu.Unlock()
		s.log.Debug("no suggestion surfaced", logger.Error(err))
		return
	}

	s.trigger.Observe(domain.ModeEventFailed)
	s.sink.Publish(events.Unavailable(s.id, err, now))
	s.mu.Unlock()

	s.log.Warn("suggestion request failed", logger.Bool("dispatched", dispatched), logger.Error(err))
	if dispatched && domain.IsInfrastructural(err) {
		s.refund(context.WithoutCancel(s.base), ticket, "infrastructural failure")
	}
}

func (s *Session) finishDelivered(seq uint64, sug domain.Suggestion) {
	s.mu.Lock()
	if !s.isCurrentLocked(seq) {
		s.mu.Unlock()
		s.log.Debug("discarding suggestion for superseded request", logger.String("suggestion_id", sug.ID))
		return
	}

	now := s.clock.Now()
	s.state, _ = domain.NextState(s.state, domain.EventDelivered)
	s.current = &sug
	s.sink.Publish(events.Delivered(s.id, sug))
	if s.trigger.Observe(domain.ModeEventDelivered) {
		s.sink.Publish(events.ModeChanged(s.id, domain.ModeManual, now))
	}
	if ttl := s.policy.SuggestionTTL; ttl > 0 {
		id := sug.ID
		s.expiry = s.clock.AfterFunc(ttl, func() { s.expire(id) })
	}
	s.mu.Unlock()

	s.log.Info("suggestion delivered",
		logger.String("suggestion_id", sug.ID),
		logger.Float64("confidence", sug.Confidence),
		logger.Int("sources", len(sug.Sources)))

	if s.outcomes != nil {
		if err := s.outcomes.Delivered(context.WithoutCancel(s.base), s.userID, now); err != nil {
			s.log.Warn("failed to record delivery", logger.Error(err))
		}
	}
}

func (s *Session) expire(id string) {
	s.mu.Lock()
	now := s.clock.Now()
	sug, err := s.resolveCurrent(id, domain.StatusExpired, now)
	s.mu.Unlock()

	if err == nil {
		s.recordResolved(sug, now)
	}
}

func (s *Session) refund(ctx context.Context, t quota.Ticket, reason string) {
	if err := s.ledger.Refund(context.WithoutCancel(ctx), t); err != nil {
		s.log.Error("quota refund failed", logger.String("reason", reason), logger.Error(err))
		return
	}
	s.log.Info("quota refunded", logger.String("reason", reason))
}

func (s *Session) recordResolved(sug domain.Suggestion, at time.Time) {
	if s.outcomes == nil {
		return
	}
	if err := s.outcomes.Resolved(context.WithoutCancel(s.base), s.userID, sug.Status, at); err != nil {
		s.log.Warn("failed to record outcome",
			logger.String("suggestion_id", sug.ID),
			logger.Error(err))
	}
}

func clampCursor(cursor int, text string) int {
	switch {
	case cursor < 0:
		return 0
	case cursor > utf8.RuneCountInString(text):
		return utf8.RuneCountInString(text)
	default:
		return cursor
	}
}

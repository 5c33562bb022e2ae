package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/cowrite/internal/clock"
	"github.com/MrSnakeDoc/cowrite/internal/domain"
	"github.com/MrSnakeDoc/cowrite/internal/events"
	"github.com/MrSnakeDoc/cowrite/internal/identity"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
	"github.com/MrSnakeDoc/cowrite/internal/policy"
	"github.com/MrSnakeDoc/cowrite/internal/quota"
)

// ManagerConfig holds the collaborators shared by every session.
type ManagerConfig struct {
	Policy   *policy.Holder
	Ledger   quota.Ledger
	Clock    clock.Clock
	Sink     events.Sink
	Outcomes OutcomeRecorder
	Log      logger.Logger

	// Assembler returns the assembler a new session uses under p.
	Assembler func(p policy.Policy) Assembler
}

// Manager is the registry of live editing sessions.
type Manager struct {
	cfg   ManagerConfig
	newID func() string

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		newID:    uuid.NewString,
		sessions: make(map[string]*Session),
	}
}

// Start opens a session for userID under the current policy.
func (m *Manager) Start(userID string) (*Session, error) {
	if !identity.Valid(userID) {
		return nil, domain.ErrMissingIdentity
	}

	p := m.cfg.Policy.Load()
	s := New(Config{
		ID:        m.newID(),
		UserID:    userID,
		Policy:    p,
		Ledger:    m.cfg.Ledger,
		Assembler: m.cfg.Assembler(p),
		Clock:     m.cfg.Clock,
		Sink:      m.cfg.Sink,
		Outcomes:  m.cfg.Outcomes,
		Log:       m.cfg.Log,
	})

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.cfg.Log.Info("session started",
		logger.String("session_id", s.ID()),
		logger.String("user_id", userID))
	return s, nil
}

// Get returns the session id if it belongs to userID.
func (m *Manager) Get(id, userID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || s.UserID() != userID {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// End ends and forgets the session id owned by userID.
func (m *Manager) End(id, userID string) error {
	s, err := m.Get(id, userID)
	if err != nil {
		return err
	}
	m.remove(s)
	return nil
}

// List returns snapshots of userID's sessions, oldest first.
func (m *Manager) List(userID string) []Snapshot {
	m.mu.RLock()
	var out []Snapshot
	for _, s := range m.sessions {
		if s.UserID() == userID {
			out = append(out, s.Snapshot())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// EndIdle ends sessions with no editor activity since now-idle and
// returns how many were ended.
func (m *Manager) EndIdle(now time.Time, idle time.Duration) int {
	cutoff := now.Add(-idle)

	m.mu.RLock()
	var stale []*Session
	for _, s := range m.sessions {
		if s.LastActivity().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range stale {
		m.remove(s)
	}
	return len(stale)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close ends every session and waits for in-flight requests to return.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.End()
	}
	for _, s := range all {
		s.Wait()
	}
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID())
	m.mu.Unlock()

	s.End()
	m.cfg.Log.Info("session ended",
		logger.String("session_id", s.ID()),
		logger.String("user_id", s.UserID()))
}

package memory

import (
	"sync"
	"time"

	"comanda/internal/domain/session"
	"comanda/pkg/logger"
)

// Clock abstracts time for deterministic timeout tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock
func SystemClock() Clock { return systemClock{} }

// SessionStore is the in-memory conversation session table, keyed by the
// remote party's phone-like identifier. It is the only component allowed
// to create, delete or mutate sessions; everything else goes through its
// API. Sessions are volatile and rebuilt from scratch after restart.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	resets   map[string]*time.Timer
	clock    Clock
	log      *logger.Logger
}

// NewSessionStore creates an empty store
func NewSessionStore(clock Clock, log *logger.Logger) *SessionStore {
	if clock == nil {
		clock = SystemClock()
	}
	return &SessionStore{
		sessions: make(map[string]*session.Session),
		resets:   make(map[string]*time.Timer),
		clock:    clock,
		log:      log.With("component", "session_store"),
	}
}

// ensure returns the live entry for id, creating it lazily in Idle.
// Caller must hold the write lock. A pending post-completion reset for
// the same id is invalidated because the entry is active again.
func (s *SessionStore) ensure(id string) *session.Session {
	if sess, ok := s.sessions[id]; ok {
		return sess
	}

	if t, ok := s.resets[id]; ok {
		t.Stop()
		delete(s.resets, id)
	}

	now := s.clock.Now()
	sess := &session.Session{
		ID:           id,
		State:        session.StateIdle,
		CreatedAt:    now,
		LastActivity: now,
	}
	s.sessions[id] = sess
	return sess
}

// InitializeSession returns the existing session or creates one in Idle
// with empty data. Always refreshes LastActivity.
func (s *SessionStore) InitializeSession(id string) session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.ensure(id)
	sess.LastActivity = s.clock.Now()
	return *sess
}

// SetState merges the patch into the session data, overwrites the state
// and refreshes LastActivity. A nil patch only changes state.
func (s *SessionStore) SetState(id string, state session.State, patch func(*session.Data)) session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.ensure(id)
	if patch != nil {
		patch(&sess.Data)
	}
	sess.State = state
	sess.LastActivity = s.clock.Now()
	return *sess
}

// GetState returns Idle when no session exists
func (s *SessionStore) GetState(id string) session.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[id]; ok {
		return sess.State
	}
	return session.StateIdle
}

// GetData returns a copy of the accumulated data, empty when no session
func (s *SessionStore) GetData(id string) session.Data {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[id]; ok {
		return sess.Data
	}
	return session.Data{}
}

// UpdateData merges the patch without changing state
func (s *SessionStore) UpdateData(id string, patch func(*session.Data)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.ensure(id)
	if patch != nil {
		patch(&sess.Data)
	}
	sess.LastActivity = s.clock.Now()
}

// ResetSession deletes the entry entirely and cancels any pending
// post-completion reset.
func (s *SessionStore) ResetSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	if t, ok := s.resets[id]; ok {
		t.Stop()
		delete(s.resets, id)
	}
}

// IsInActiveFlow reports whether the party has a non-Idle session
func (s *SessionStore) IsInActiveFlow(id string) bool {
	return s.GetState(id) != session.StateIdle
}

// Count returns the number of stored sessions
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep resets every session whose LastActivity is older than maxIdle
// and returns how many were evicted. Called by the eviction worker.
func (s *SessionStore) Sweep(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-maxIdle)
	evicted := 0

	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			if t, ok := s.resets[id]; ok {
				t.Stop()
				delete(s.resets, id)
			}
			evicted++
		}
	}

	if evicted > 0 {
		s.log.Infow("Evicted idle sessions", "count", evicted)
	}
	return evicted
}

// ScheduleReset arms a one-shot reset that fires after the completion
// grace period. Rescheduling for the same party replaces the previous
// timer.
func (s *SessionStore) ScheduleReset(id string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.resets[id]; ok {
		t.Stop()
	}
	s.resets[id] = time.AfterFunc(delay, func() {
		s.ExpireCompleted(id)
	})
}

// ExpireCompleted deletes the session only if it is still in
// OrderCompleted, so a newer session for the same party survives a stale
// timer. Returns whether the session was removed.
func (s *SessionStore) ExpireCompleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.resets, id)

	sess, ok := s.sessions[id]
	if !ok || sess.State != session.StateOrderCompleted {
		return false
	}

	delete(s.sessions, id)
	return true
}

// Close stops all pending reset timers
func (s *SessionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.resets {
		t.Stop()
		delete(s.resets, id)
	}
}

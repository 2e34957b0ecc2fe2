// Package memory provides process-lifetime in-memory persistence. The
// conversation session store lives here: it is intentionally volatile, a
// restart drops every in-flight dialog and users simply start over.
package memory

import (
	"context"
	"sync"

	"github.com/denemerapor/exam-report-hub/internal/domain/session"
	"github.com/denemerapor/exam-report-hub/internal/domain/student"
)

// SessionStore implements session.Store with a mutex-guarded map. At most
// one state per user; Set overwrites wholesale on every transition.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[student.UserID]session.State
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[student.UserID]session.State),
	}
}

// Get returns the user's state; ok=false means Idle.
func (s *SessionStore) Get(ctx context.Context, id student.UserID) (session.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	return st, ok
}

// Set stores the user's state, replacing any previous one.
func (s *SessionStore) Set(ctx context.Context, id student.UserID, st session.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = st
}

// Delete clears the user's state.
func (s *SessionStore) Delete(ctx context.Context, id student.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of active sessions. Used by tests and diagnostics.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

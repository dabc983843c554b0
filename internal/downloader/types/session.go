package types

import "sync"

// Session is the ephemeral per-client-instance credential artifact: a cookie,
// a negotiated session id, or a token, depending on the backend. Not persisted;
// rebuilt on demand and invalidated on authentication failure.
type Session struct {
	Cookie string
	Token  string
}

// SessionStore maps download client config IDs to their cached sessions.
// Ownership is explicit: the factory creates one store and passes it by
// reference into every adapter it builds, so session lifetime never leaks
// across configs or hides in package-level state.
//
// Concurrent callers racing to re-authenticate the same config are tolerated;
// last write wins.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[int64]Session)}
}

// Get returns the cached session for a config, if any.
func (s *SessionStore) Get(configID int64) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[configID]
	return sess, ok
}

// Set caches a session for a config.
func (s *SessionStore) Set(configID int64, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[configID] = sess
}

// Clear invalidates the cached session for a config.
func (s *SessionStore) Clear(configID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, configID)
}

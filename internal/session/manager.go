package session

import (
	"fmt"
	"time"
)

// Manager is the operator-facing session API: create, validate-and-touch,
// and invalidate, against a pluggable Cache (spec §4.5). A cluster
// deployment constructs one with an external Cache; standalone mode uses
// a *Store.
type Manager struct {
	cache   Cache
	timeout time.Duration
}

// NewManager wraps cache with the default idle timeout.
func NewManager(cache Cache) *Manager {
	return &Manager{cache: cache, timeout: IdleTimeout}
}

// WithTimeout overrides the idle timeout (IdleTimeout by default).
func (m *Manager) WithTimeout(d time.Duration) *Manager {
	m.timeout = d
	return m
}

// Create starts a new session for userID/user and stores it.
func (m *Manager) Create(userID int64, user, ipAddress string) Session {
	now := time.Now()
	sess := Session{
		ID:         NewID(),
		UserID:     userID,
		User:       user,
		CreatedAt:  now,
		LastAccess: now,
		IPAddress:  ipAddress,
	}
	m.cache.Put(sess)
	return sess
}

// Touch validates id against the idle timeout and, if still live,
// refreshes its last-access time and returns it. A session found idle
// is evicted and reported not found.
func (m *Manager) Touch(id string) (Session, bool) {
	sess, ok := m.cache.Get(id)
	if !ok {
		return Session{}, false
	}
	now := time.Now()
	if sess.idle(now, m.timeout) {
		m.cache.Delete(id)
		return Session{}, false
	}
	sess.LastAccess = now
	m.cache.Put(sess)
	return sess, true
}

// Invalidate ends a session immediately.
func (m *Manager) Invalidate(id string) {
	m.cache.Delete(id)
}

// Count reports the number of live sessions, for status/metrics
// reporting. Only caches that can report this cheaply (e.g. *Store)
// support it; others return an error.
func (m *Manager) Count() (int, error) {
	counter, ok := m.cache.(interface{ Len() int })
	if !ok {
		return 0, fmt.Errorf("session: cache does not support Count")
	}
	return counter.Len(), nil
}

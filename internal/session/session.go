// Package session is the pluggable session store (spec §4.5): a
// key-to-session mapping with idle-timeout eviction, backed either by an
// in-process map or an external shared cache (spec §5 "session store is
// shared across the process (or cluster)").
package session

import (
	"time"

	uuid "github.com/satori/go.uuid"
)

// IdleTimeout is the default duration of inactivity after which a
// session is evicted (spec §4.5 "Idle timeout = 30 minutes").
const IdleTimeout = 30 * time.Minute

// CleanInterval is how often the in-process Store sweeps for idle
// sessions (spec §4.5 "cleaning task every 5 minutes").
const CleanInterval = 5 * time.Minute

// Session is one authenticated session (spec §4.5).
type Session struct {
	ID         string
	UserID     int64
	User       string
	CreatedAt  time.Time
	LastAccess time.Time
	IPAddress  string
}

// idle reports whether the session has been inactive longer than
// timeout, measured from now.
func (s *Session) idle(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastAccess) > timeout
}

// NewID returns a fresh session identifier (spec §4.5 "Session IDs are
// UUIDs"). crypto/rand exhaustion is the only failure mode of NewV4 and
// is not expected in practice; callers get a zero UUID string in that
// case rather than a panic.
func NewID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.UUID{}.String()
	}
	return id.String()
}

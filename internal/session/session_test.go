package session

import (
	"crypto/sha1"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)
}

func TestStorePutGetDelete(t *testing.T) {
	s := NewStore()
	defer s.Close()

	sess := Session{ID: NewID(), UserID: 1, User: "alice", LastAccess: time.Now()}
	s.Put(sess)

	got, ok := s.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, "alice", got.User)

	s.Delete(sess.ID)
	_, ok = s.Get(sess.ID)
	assert.False(t, ok)
}

func TestStoreSweepEvictsIdle(t *testing.T) {
	s := NewStore()
	defer s.Close()

	now := time.Now()
	fresh := Session{ID: NewID(), LastAccess: now}
	stale := Session{ID: NewID(), LastAccess: now.Add(-time.Hour)}
	s.Put(fresh)
	s.Put(stale)

	removed := s.Sweep(now, IdleTimeout)
	assert.Equal(t, 1, removed)

	_, ok := s.Get(fresh.ID)
	assert.True(t, ok)
	_, ok = s.Get(stale.ID)
	assert.False(t, ok)
}

func TestManagerCreateAndTouch(t *testing.T) {
	s := NewStore()
	defer s.Close()
	m := NewManager(s)

	sess := m.Create(42, "bob", "10.0.0.1")
	require.NotEmpty(t, sess.ID)

	touched, ok := m.Touch(sess.ID)
	require.True(t, ok)
	assert.Equal(t, int64(42), touched.UserID)
	assert.True(t, touched.LastAccess.After(sess.LastAccess) || touched.LastAccess.Equal(sess.LastAccess))
}

func TestManagerTouchEvictsIdleSession(t *testing.T) {
	s := NewStore()
	defer s.Close()
	m := NewManager(s).WithTimeout(time.Millisecond)

	sess := m.Create(1, "carol", "")
	time.Sleep(5 * time.Millisecond)

	_, ok := m.Touch(sess.ID)
	assert.False(t, ok)
}

func TestManagerInvalidate(t *testing.T) {
	s := NewStore()
	defer s.Close()
	m := NewManager(s)

	sess := m.Create(1, "dave", "")
	m.Invalidate(sess.ID)

	_, ok := m.Touch(sess.ID)
	assert.False(t, ok)
}

func TestManagerCount(t *testing.T) {
	s := NewStore()
	defer s.Close()
	m := NewManager(s)

	m.Create(1, "a", "")
	m.Create(2, "b", "")

	n, err := m.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "correct horse battery staple"))
	assert.False(t, VerifyPassword(hash, "wrong password"))
}

func TestVerifyLegacySHA1Password(t *testing.T) {
	// Legacy scheme: SALT_<salt>:<hex sha1(salt+password)>.
	salt := "abc123"
	password := "legacy-pass"
	sum := sha1Hex(salt + password)
	stored := legacyPrefix + salt + ":" + sum

	assert.True(t, VerifyPassword(stored, password))
	assert.False(t, VerifyPassword(stored, "not-it"))
}

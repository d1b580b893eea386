package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory with lazy idle expiry.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[int64]Session
}

// NewMemoryStore constructs an in-memory Store. ttl <= 0 selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[int64]Session),
	}
}

// WithClock replaces the time source; tests use it to step past the TTL.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		m.now = now
	}
	return m
}

// Get returns the session for a user unless it is missing or idle past the TTL.
func (m *MemoryStore) Get(_ context.Context, userID int64) (Session, bool, error) {
	m.mu.RLock()
	sess, ok := m.sessions[userID]
	m.mu.RUnlock()
	if !ok {
		return Session{}, false, nil
	}
	if m.now().Sub(sess.UpdatedAt) > m.ttl {
		m.mu.Lock()
		if cur, still := m.sessions[userID]; still && cur.UpdatedAt.Equal(sess.UpdatedAt) {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
		return Session{}, false, nil
	}
	sess.Data = cloneData(sess.Data)
	return sess, true, nil
}

// Set stores a copy of s and stamps UpdatedAt.
func (m *MemoryStore) Set(_ context.Context, userID int64, s Session) error {
	s.Data = cloneData(s.Data)
	s.UpdatedAt = m.now()
	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()
	return nil
}

// Clear removes the entire session for a user.
func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}

// Sweep drops every expired session and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, sess := range m.sessions {
		if now.Sub(sess.UpdatedAt) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

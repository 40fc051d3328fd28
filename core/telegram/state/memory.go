package state

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/YouMeAI/YouMeCare/core/logger"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	locks    *userLocks
	now      func() time.Time
}

// NewMemoryStore constructs the in-memory Store used by the bot.
func NewMemoryStore() Store {
	return newMemoryStore(time.Now)
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{
		sessions: make(map[int64]*Session),
		locks:    newUserLocks(),
		now:      now,
	}
}

// GetOrCreate returns the session for a user, creating a menu session if necessary.
func (m *memoryStore) GetOrCreate(userID int64) Session {
	m.mu.RLock()
	if session, ok := m.sessions[userID]; ok {
		out := session.Clone()
		m.mu.RUnlock()
		return out
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[userID]; ok {
		return session.Clone()
	}
	fresh := NewSession(userID, m.now())
	m.sessions[userID] = &fresh
	logger.Debug(context.Background(), "sessions", "session.created",
		slog.Int64("user_id", userID),
		slog.Int("sessions", len(m.sessions)),
	)
	return fresh.Clone()
}

// Put stores a copy of the session and refreshes its activity timestamp.
func (m *memoryStore) Put(s Session) {
	stored := s.Clone()
	stored.LastActivity = m.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.LastActivity
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = &stored
}

// Lock serializes all work for the given user.
func (m *memoryStore) Lock(userID int64) func() {
	return m.locks.lock(userID)
}

// Len reports the number of tracked sessions.
func (m *memoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Snapshot returns copies of all sessions ordered by user id.
func (m *memoryStore) Snapshot() []Session {
	m.mu.RLock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// SweepIdle drops sessions idle for longer than ttl. A non-positive ttl is a no-op.
func (m *memoryStore) SweepIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

package service

import (
	"sync"
	"time"
)

// AgentSession holds the ordered transcript of one conversation. The
// transcript is append-only and reflects strict chronological turn order.
type AgentSession struct {
	ID        string
	Messages  []ChatMessage
	UpdatedAt time.Time
}

// SessionStore abstracts chat session storage so the in-memory
// implementation can later be swapped for a persistent or distributed one
type SessionStore interface {
	Get(id string) (*AgentSession, bool)
	Put(session *AgentSession)
	Evict(id string)
}

// MemorySessionStore is a mutex-guarded in-memory session store with a
// per-session TTL and a max-session cap. Sessions idle past the TTL are
// dropped on access and on insert; when the cap is reached the least
// recently updated session is evicted.
type MemorySessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*AgentSession
	ttl         time.Duration
	maxSessions int
}

// NewMemorySessionStore creates a session store with the given TTL and cap.
// A non-positive TTL disables expiry; a non-positive cap disables eviction.
func NewMemorySessionStore(ttl time.Duration, maxSessions int) *MemorySessionStore {
	return &MemorySessionStore{
		sessions:    make(map[string]*AgentSession),
		ttl:         ttl,
		maxSessions: maxSessions,
	}
}

// Get returns the session for id, treating an expired session as absent
func (s *MemorySessionStore) Get(id string) (*AgentSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired(session, time.Now()) {
		delete(s.sessions, id)
		return nil, false
	}
	return session, true
}

// Put stores the session, refreshing its activity timestamp and enforcing
// the TTL and max-session limits
func (s *MemorySessionStore) Put(session *AgentSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	session.UpdatedAt = now

	// Drop expired sessions before counting against the cap
	for id, existing := range s.sessions {
		if s.expired(existing, now) {
			delete(s.sessions, id)
		}
	}

	if _, exists := s.sessions[session.ID]; !exists && s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.evictOldest()
	}

	s.sessions[session.ID] = session
}

// Evict removes the session for id if present
func (s *MemorySessionStore) Evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of live sessions
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemorySessionStore) expired(session *AgentSession, now time.Time) bool {
	return s.ttl > 0 && now.Sub(session.UpdatedAt) > s.ttl
}

func (s *MemorySessionStore) evictOldest() {
	var oldestID string
	var oldestAt time.Time
	for id, session := range s.sessions {
		if oldestID == "" || session.UpdatedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = session.UpdatedAt
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}

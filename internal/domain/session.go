package domain

import (
	"sync"
	"time"
)

// SessionState tracks a connection through its lifecycle. Closed is terminal:
// no transition leaves it.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the stateful object representing one client's connection
// lifecycle. The identity is set exactly once, on the transition out of
// Connecting, and never changes afterwards.
type Session struct {
	ID string

	mu           sync.RWMutex
	state        SessionState
	identity     Identity
	createdAt    time.Time
	lastActiveAt time.Time
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		state:        StateConnecting,
		createdAt:    now,
		lastActiveAt: now,
	}
}

// Authenticate moves the session from Connecting to Authenticated and binds
// the verified identity. Returns false if the session is not in Connecting.
func (s *Session) Authenticate(identity Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return false
	}
	s.identity = identity
	s.state = StateAuthenticated
	s.lastActiveAt = time.Now()
	return true
}

// Activate moves the session from Authenticated to Active. It succeeds at
// most once per session, which is what guarantees event handlers are attached
// a single time for a given connection.
func (s *Session) Activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return false
	}
	s.state = StateActive
	s.lastActiveAt = time.Now()
	return true
}

// Close moves the session to Closed from any state. Returns false if the
// session was already closed, so disconnect cleanup runs exactly once.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	return true
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateActive
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

package state

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long an abandoned session is kept.
const DefaultTTL = 30 * time.Minute

type memoryManager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	ttl      time.Duration
	now      func() time.Time
}

// Option customizes the memory manager.
type Option func(*memoryManager)

// WithTTL sets the idle timeout. Non-positive values disable expiry.
func WithTTL(ttl time.Duration) Option {
	return func(m *memoryManager) { m.ttl = ttl }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *memoryManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryManager constructs an in-process Manager.
func NewMemoryManager(opts ...Option) Manager {
	m := &memoryManager{
		sessions: make(map[int64]*Session),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// live returns the session of userID or nil, evicting it when expired. Caller holds m.mu.
func (m *memoryManager) live(userID int64, now time.Time) *Session {
	sess, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	if m.expired(sess, now) {
		delete(m.sessions, userID)
		return nil
	}
	return sess
}

func (m *memoryManager) expired(sess *Session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(sess.Touched) >= m.ttl
}

func (m *memoryManager) Get(userID int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.live(userID, m.now())
	if sess == nil {
		return Session{State: Idle}, false
	}
	return *sess, true
}

func (m *memoryManager) Begin(userID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = &Session{State: st, Touched: m.now()}
}

func (m *memoryManager) Put(userID int64, sess Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.Touched = m.now()
	m.sessions[userID] = &sess
}

func (m *memoryManager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

func (m *memoryManager) InProgress(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.live(userID, m.now())
	return sess != nil && sess.State != Idle
}

func (m *memoryManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var dropped int
	for id, sess := range m.sessions {
		if m.expired(sess, now) {
			delete(m.sessions, id)
			dropped++
		}
	}
	return dropped
}

func (m *memoryManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

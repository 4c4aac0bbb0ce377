package state

import (
	"context"
	"sync"
	"time"
)

// Gauge is notified when sessions appear in or leave the memory store.
type Gauge interface {
	SessionStarted()
	SessionEnded()
}

// MemoryOptions configures NewMemoryStore.
type MemoryOptions struct {
	// TTL expires sessions idle for longer than this; zero keeps them forever.
	TTL   time.Duration
	Gauge Gauge
	Now   func() time.Time
}

type memoryStore struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	opts     MemoryOptions
}

// NewMemoryStore returns a process-local Store. Sessions do not survive restarts.
func NewMemoryStore(opts MemoryOptions) Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &memoryStore{sessions: make(map[Key]*Session), opts: opts}
}

func (m *memoryStore) expired(s *Session, now time.Time) bool {
	return m.opts.TTL > 0 && now.Sub(s.UpdatedAt) > m.opts.TTL
}

func (m *memoryStore) Load(_ context.Context, key Key) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, false, nil
	}
	if m.expired(s, m.opts.Now()) {
		m.remove(key)
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

func (m *memoryStore) Save(_ context.Context, key Key, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := s.Clone()
	snap.UpdatedAt = m.opts.Now()
	if _, exists := m.sessions[key]; !exists && m.opts.Gauge != nil {
		m.opts.Gauge.SessionStarted()
	}
	m.sessions[key] = snap
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(key)
	return nil
}

func (m *memoryStore) remove(key Key) {
	if _, ok := m.sessions[key]; !ok {
		return
	}
	delete(m.sessions, key)
	if m.opts.Gauge != nil {
		m.opts.Gauge.SessionEnded()
	}
}

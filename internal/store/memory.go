package store

import (
	"context"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"repotutor/internal/apperr"
)

// Memory keeps sessions and statuses in process memory.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]Session
	statuses map[string]IndexStatus
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]Session),
		statuses: make(map[string]IndexStatus),
	}
}

func (m *Memory) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[strings.TrimSpace(id)]
	if !ok {
		return Session{}, sessionNotFound(id)
	}
	return s, nil
}

func (m *Memory) PutSession(_ context.Context, s Session) error {
	if strings.TrimSpace(s.ID) == "" {
		return apperr.New(apperr.KindInvalidArgument, "session id is required")
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, strings.TrimSpace(id))
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetStatus(_ context.Context, sessionID string) (IndexStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.statuses[strings.TrimSpace(sessionID)]
	if !ok {
		return IndexStatus{}, statusNotFound(sessionID)
	}
	return st, nil
}

func (m *Memory) PutStatus(_ context.Context, st IndexStatus) error {
	if strings.TrimSpace(st.SessionID) == "" {
		return apperr.New(apperr.KindInvalidArgument, "session id is required")
	}
	m.mu.Lock()
	m.statuses[st.SessionID] = st
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteStatus(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.statuses, strings.TrimSpace(sessionID))
	m.mu.Unlock()
	return nil
}

// LRU is a size-bounded KV. The least recently used key is evicted first.
type LRU[V any] struct {
	what  string
	cache *lru.Cache[string, V]
}

func NewLRU[V any](size int, what string) *LRU[V] {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[string, V](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &LRU[V]{what: what, cache: c}
}

func (l *LRU[V]) Get(_ context.Context, key string) (V, error) {
	v, ok := l.cache.Get(key)
	if !ok {
		var zero V
		return zero, apperr.New(apperr.KindNotFound, "%s for %q not cached", l.what, key)
	}
	return v, nil
}

func (l *LRU[V]) Put(_ context.Context, key string, v V) error {
	l.cache.Add(key, v)
	return nil
}

func (l *LRU[V]) Delete(_ context.Context, key string) error {
	l.cache.Remove(key)
	return nil
}

func (l *LRU[V]) Len() int { return l.cache.Len() }

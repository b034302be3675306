package nonce

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps nonces in a mutex-guarded map. Suitable for a single
// gate process and for tests; consumption is atomic under the lock.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Nonce // keyed by value
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Nonce)}
}

func (s *MemoryStore) Issue(_ context.Context, agentID string) (*Nonce, error) {
	value, err := NewValue()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	n := &Nonce{
		Value:     value,
		AgentID:   agentID,
		IssuedAt:  now,
		ExpiresAt: now.Add(TTL),
	}

	s.mu.Lock()
	s.entries[value] = n
	s.mu.Unlock()
	return n, nil
}

func (s *MemoryStore) TryConsume(_ context.Context, agentID, value string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.entries[value]
	if !ok || n.AgentID != agentID || n.ConsumedAt != nil || !now.Before(n.ExpiresAt) {
		return false, nil
	}
	consumed := now
	n.ConsumedAt = &consumed
	return true, nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for v, n := range s.entries {
		if !now.Before(n.ExpiresAt) {
			delete(s.entries, v)
			purged++
		}
	}
	return purged, nil
}

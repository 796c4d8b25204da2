package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in process memory.
type MemoryStore[V any] struct {
	mu   sync.RWMutex
	data map[string]Entry[V]
}

func NewMemoryStore[V any]() *MemoryStore[V] {
	return &MemoryStore[V]{data: make(map[string]Entry[V])}
}

func (s *MemoryStore[V]) Get(_ context.Context, key string) (Entry[V], bool, error) {
	s.mu.RLock()
	entry, ok := s.data[key]
	s.mu.RUnlock()
	return entry, ok, nil
}

func (s *MemoryStore[V]) Set(_ context.Context, key string, entry Entry[V]) error {
	s.mu.Lock()
	s.data[key] = entry
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, fresh or stale.
func (s *MemoryStore[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

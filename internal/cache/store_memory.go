package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps cache entries in process memory. It is the default
// backend; entries do not survive the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get returns the entry for fingerprint, if present.
func (s *MemoryStore) Get(_ context.Context, fingerprint string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[fingerprint]
	return entry, ok, nil
}

// Put stores entry, replacing any prior entry for its fingerprint.
func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Fingerprint] = entry
	return nil
}

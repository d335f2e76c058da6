package sink

import (
	"context"
	"sync"

	"github.com/scrapemonster/catalog-crawler/internal/catalog"
)

// MemorySink captures artifacts in memory for tests.
type MemorySink struct {
	mu        sync.Mutex
	artifacts map[string][]byte
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{artifacts: make(map[string][]byte)}
}

// Write stores the encoded artifact under name.
func (s *MemorySink) Write(_ context.Context, name string, records []catalog.ProductRecord) (string, error) {
	data, err := encodeJSONL(records)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[name] = data
	return "memory://" + name, nil
}

// Artifact returns the stored bytes for name.
func (s *MemorySink) Artifact(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.artifacts[name]
	return data, ok
}

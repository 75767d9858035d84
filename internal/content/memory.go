package content

import (
	"context"
	"fmt"
	"sync"

	"market-sync/internal/domain"
)

// MemoryStore is an in-process Store keyed by CIDv0 of the raw blob.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	gets  map[string]int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
		gets:  make(map[string]int),
	}
}

var _ Store = (*MemoryStore)(nil)

// Put stores blob and returns its hash.
func (s *MemoryStore) Put(_ context.Context, blob []byte) (string, error) {
	hash := HashBlob(blob)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[hash]; !ok {
		s.blobs[hash] = append([]byte(nil), blob...)
	}
	return hash, nil
}

// Get returns the blob stored under hash.
func (s *MemoryStore) Get(_ context.Context, hash string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets[hash]++
	blob, ok := s.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", hash, domain.ErrNotFound)
	}
	return append([]byte(nil), blob...), nil
}

// Gets returns how many times hash was fetched.
func (s *MemoryStore) Gets(hash string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gets[hash]
}

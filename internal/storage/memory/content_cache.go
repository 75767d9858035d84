package memory

import (
	"context"
	"sync"

	"market-sync/internal/domain"
	"market-sync/internal/storage"
)

// ContentCache is an in-memory implementation of storage.ContentCache.
type ContentCache struct {
	mu   sync.RWMutex
	data map[string][]byte // keyed by content hash
}

// NewContentCache creates a new in-memory content cache.
func NewContentCache() *ContentCache {
	return &ContentCache{
		data: make(map[string][]byte),
	}
}

// Get retrieves a record by hash. Returns ErrNotFound if not cached.
func (c *ContentCache) Get(_ context.Context, hash string) (*domain.ContentRecord, error) {
	c.mu.RLock()
	raw, exists := c.data[hash]
	c.mu.RUnlock()

	if !exists {
		return nil, storage.ErrNotFound
	}
	return domain.NewContentRecord(hash, raw)
}

// Put stores a record. An already cached hash is left untouched.
func (c *ContentCache) Put(_ context.Context, rec *domain.ContentRecord) error {
	if rec == nil || rec.Hash == "" || len(rec.Raw) == 0 {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[rec.Hash]; exists {
		return nil
	}

	// Store a copy to prevent external mutation
	raw := make([]byte, len(rec.Raw))
	copy(raw, rec.Raw)
	c.data[rec.Hash] = raw
	return nil
}

// Len returns the number of cached records.
func (c *ContentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Verify interface compliance at compile time.
var _ storage.ContentCache = (*ContentCache)(nil)

package content

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/singleflight"

	"market-sync/internal/domain"
	"market-sync/internal/observability"
	"market-sync/internal/storage"
)

// CachingStore is a read-through Store over a storage.ContentCache.
// Concurrent misses for the same hash share one upstream fetch.
type CachingStore struct {
	upstream Store
	cache    storage.ContentCache
	group    singleflight.Group
	logger   *log.Logger
}

var (
	_ Store    = (*CachingStore)(nil)
	_ Resolver = (*CachingStore)(nil)
)

// NewCachingStore wraps upstream with cache.
func NewCachingStore(upstream Store, cache storage.ContentCache, logger *log.Logger) *CachingStore {
	if logger == nil {
		logger = log.Default()
	}
	return &CachingStore{upstream: upstream, cache: cache, logger: logger}
}

// Put stores blob upstream and primes the cache with it.
func (s *CachingStore) Put(ctx context.Context, blob []byte) (string, error) {
	hash, err := s.upstream.Put(ctx, blob)
	if err != nil {
		return "", err
	}
	if rec, err := domain.NewContentRecord(hash, blob); err == nil {
		s.store(ctx, rec)
	}
	return hash, nil
}

// Get returns the raw record bytes.
func (s *CachingStore) Get(ctx context.Context, hash string) ([]byte, error) {
	rec, err := s.Resolve(ctx, hash)
	if err != nil {
		return nil, err
	}
	return rec.Raw, nil
}

// Resolve returns the record for hash, consulting the cache first.
func (s *CachingStore) Resolve(ctx context.Context, hash string) (*domain.ContentRecord, error) {
	rec, err := s.cache.Get(ctx, hash)
	if err == nil {
		observability.RecordContentCacheLookup(true)
		return rec, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		// Cache outage degrades to upstream reads
		s.logger.Printf("[content] cache get %s: %v", hash, err)
	}
	observability.RecordContentCacheLookup(false)

	v, err, _ := s.group.Do(hash, func() (interface{}, error) {
		blob, err := s.upstream.Get(ctx, hash)
		if err != nil {
			return nil, err
		}
		rec, err := domain.NewContentRecord(hash, blob)
		if err != nil {
			return nil, err
		}
		s.store(ctx, rec)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ContentRecord), nil
}

func (s *CachingStore) store(ctx context.Context, rec *domain.ContentRecord) {
	if err := s.cache.Put(ctx, rec); err != nil {
		s.logger.Printf("[content] cache put %s: %v", rec.Hash, err)
	}
}

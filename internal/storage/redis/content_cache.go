package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"market-sync/internal/domain"
	"market-sync/internal/observability"
	"market-sync/internal/storage"
)

const contentKeyPrefix = "content:"

// ContentCache implements storage.ContentCache using Redis string keys.
// Keys carry no TTL; a hash always maps to the same body.
type ContentCache struct {
	client *Client
}

// NewContentCache creates a new ContentCache.
func NewContentCache(client *Client) *ContentCache {
	return &ContentCache{client: client}
}

// Compile-time interface check.
var _ storage.ContentCache = (*ContentCache)(nil)

// Get retrieves a record by hash. Returns ErrNotFound if not cached.
func (c *ContentCache) Get(ctx context.Context, hash string) (rec *domain.ContentRecord, err error) {
	start := time.Now()
	defer func() {
		queryErr := err
		if errors.Is(queryErr, storage.ErrNotFound) {
			queryErr = nil
		}
		observability.RecordDBQuery("redis", "content_get", time.Since(start).Seconds(), queryErr)
	}()

	body, err := c.client.Get(ctx, contentKeyPrefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content record: %w", err)
	}
	return domain.NewContentRecord(hash, body)
}

// Put stores a record with SETNX; an existing key is left untouched.
func (c *ContentCache) Put(ctx context.Context, rec *domain.ContentRecord) (err error) {
	if rec == nil || rec.Hash == "" || len(rec.Raw) == 0 {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("redis", "content_put", time.Since(start).Seconds(), err)
	}()

	if err := c.client.SetNX(ctx, contentKeyPrefix+rec.Hash, []byte(rec.Raw), 0).Err(); err != nil {
		return fmt.Errorf("set content record: %w", err)
	}
	return nil
}

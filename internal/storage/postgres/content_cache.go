package postgres

import (
	"context"
	"fmt"
	"time"

	"market-sync/internal/domain"
	"market-sync/internal/observability"
	"market-sync/internal/storage"
)

// ContentCache implements storage.ContentCache using PostgreSQL.
type ContentCache struct {
	pool *Pool
	now  func() time.Time
}

// NewContentCache creates a new ContentCache.
func NewContentCache(pool *Pool) *ContentCache {
	return &ContentCache{pool: pool, now: time.Now}
}

// Compile-time interface check.
var _ storage.ContentCache = (*ContentCache)(nil)

// Get retrieves a record by hash. Returns ErrNotFound if not cached.
func (c *ContentCache) Get(ctx context.Context, hash string) (rec *domain.ContentRecord, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "content_get", time.Since(start).Seconds(), ignoreNotFound(err))
	}()

	query := `
		SELECT body
		FROM content_records
		WHERE hash = $1
	`

	var body []byte
	if err := c.pool.QueryRow(ctx, query, hash).Scan(&body); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get content record: %w", err)
	}
	return domain.NewContentRecord(hash, body)
}

// Put stores a record. An already cached hash is left untouched.
func (c *ContentCache) Put(ctx context.Context, rec *domain.ContentRecord) (err error) {
	if rec == nil || rec.Hash == "" || len(rec.Raw) == 0 {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "content_put", time.Since(start).Seconds(), err)
	}()

	query := `
		INSERT INTO content_records (hash, body, cached_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (hash) DO NOTHING
	`

	if _, err := c.pool.Exec(ctx, query, rec.Hash, []byte(rec.Raw), c.now().UnixMilli()); err != nil {
		return fmt.Errorf("insert content record: %w", err)
	}
	return nil
}

func ignoreNotFound(err error) error {
	if err == storage.ErrNotFound {
		return nil
	}
	return err
}

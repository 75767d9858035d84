package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"market-sync/internal/domain"
	"market-sync/internal/storage"
)

func setupTestClient(t *testing.T) (*Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := NewClient(ctx, url)
	require.NoError(t, err)

	cleanup := func() {
		client.Close()
		_ = container.Terminate(ctx)
	}
	return client, cleanup
}

func TestContentCache_Integration(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()

	cache := NewContentCache(client)
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		_, err := cache.Get(ctx, "QmMissing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("put then get keeps bytes", func(t *testing.T) {
		rec := &domain.ContentRecord{Hash: "QmOne", Raw: []byte(`{"title": "lamp",  "price":1}`)}
		require.NoError(t, cache.Put(ctx, rec))

		got, err := cache.Get(ctx, "QmOne")
		require.NoError(t, err)
		assert.Equal(t, string(rec.Raw), string(got.Raw))
	})

	t.Run("second put is a no-op", func(t *testing.T) {
		require.NoError(t, cache.Put(ctx, &domain.ContentRecord{Hash: "QmTwo", Raw: []byte(`{"v":1}`)}))
		require.NoError(t, cache.Put(ctx, &domain.ContentRecord{Hash: "QmTwo", Raw: []byte(`{"v":2}`)}))

		got, err := cache.Get(ctx, "QmTwo")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(got.Raw))
	})

	t.Run("invalid input", func(t *testing.T) {
		assert.ErrorIs(t, cache.Put(ctx, nil), storage.ErrInvalidInput)
		assert.ErrorIs(t, cache.Put(ctx, &domain.ContentRecord{Hash: "QmEmpty"}), storage.ErrInvalidInput)
	})
}

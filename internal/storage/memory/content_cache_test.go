package memory

import (
	"context"
	"errors"
	"testing"

	"market-sync/internal/domain"
	"market-sync/internal/storage"
)

func TestContentCache_PutAndGet(t *testing.T) {
	cache := NewContentCache()
	ctx := context.Background()

	rec, err := domain.NewContentRecord("QmHash", []byte(`{"title":"Lamp"}`))
	if err != nil {
		t.Fatalf("NewContentRecord: %v", err)
	}

	if err := cache.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := cache.Get(ctx, "QmHash")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Field("title") != "Lamp" {
		t.Errorf("title mismatch: got %q", got.Field("title"))
	}
}

func TestContentCache_NotFound(t *testing.T) {
	cache := NewContentCache()

	_, err := cache.Get(context.Background(), "QmMissing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestContentCache_PutIdempotent(t *testing.T) {
	cache := NewContentCache()
	ctx := context.Background()

	first, _ := domain.NewContentRecord("QmHash", []byte(`{"v":1}`))
	second, _ := domain.NewContentRecord("QmHash", []byte(`{"v":2}`))

	if err := cache.Put(ctx, first); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cache.Put(ctx, second); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, _ := cache.Get(ctx, "QmHash")
	if string(got.Raw) != `{"v":1}` {
		t.Errorf("cached record replaced: got %s", got.Raw)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 record, got %d", cache.Len())
	}
}

func TestContentCache_InvalidInput(t *testing.T) {
	cache := NewContentCache()
	ctx := context.Background()

	if err := cache.Put(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}
	if err := cache.Put(ctx, &domain.ContentRecord{Raw: []byte(`{}`)}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty hash, got %v", err)
	}
}

// Package content resolves item content from a content-addressed store.
package content

import (
	"context"
	"encoding/json"
	"fmt"

	"market-sync/internal/domain"
)

// Store is the content-addressed blob capability. Implementations must
// satisfy Get(Put(b)) == b and return the same hash for the same blob.
type Store interface {
	Put(ctx context.Context, blob []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
}

// Resolver is implemented by stores that return parsed records directly.
type Resolver interface {
	Resolve(ctx context.Context, hash string) (*domain.ContentRecord, error)
}

// PutJSON encodes v and stores it.
func PutJSON(ctx context.Context, s Store, v any) (string, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal content: %w", err)
	}
	return s.Put(ctx, blob)
}

// Resolve fetches hash and parses it as a content record.
func Resolve(ctx context.Context, s Store, hash string) (*domain.ContentRecord, error) {
	if r, ok := s.(Resolver); ok {
		return r.Resolve(ctx, hash)
	}
	blob, err := s.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	return domain.NewContentRecord(hash, blob)
}

// JSONPutter adapts a Store to the gateway's PutJSON dependency.
type JSONPutter struct {
	Store Store
}

// PutJSON encodes v and stores it.
func (p JSONPutter) PutJSON(ctx context.Context, v any) (string, error) {
	return PutJSON(ctx, p.Store, v)
}

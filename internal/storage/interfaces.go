package storage

import (
	"context"

	"market-sync/internal/domain"
)

// ContentCache persists resolved content records keyed by hash.
// Records are immutable, so entries never expire and Put is idempotent.
type ContentCache interface {
	// Get retrieves a record by hash. Returns ErrNotFound if not cached.
	Get(ctx context.Context, hash string) (*domain.ContentRecord, error)

	// Put stores a record. Storing an already cached hash is a no-op.
	// Returns ErrInvalidInput for an empty hash or body.
	Put(ctx context.Context, rec *domain.ContentRecord) error
}

// JournalFilter selects journal records. Zero fields match everything.
type JournalFilter struct {
	Name   domain.EventName
	ItemID domain.ItemID
	Since  int64 // unix ms, inclusive
	Until  int64 // unix ms, inclusive
	Limit  int
}

// Match reports whether rec satisfies the filter, ignoring Limit.
func (f JournalFilter) Match(rec *domain.JournalRecord) bool {
	if f.Name != "" && rec.Name != f.Name {
		return false
	}
	if f.ItemID != 0 && rec.ItemID != f.ItemID {
		return false
	}
	if f.Since != 0 && rec.ObservedAt < f.Since {
		return false
	}
	if f.Until != 0 && rec.ObservedAt > f.Until {
		return false
	}
	return true
}

// EventJournal is an append-only log of observed ledger events.
type EventJournal interface {
	// Append adds a record. Returns ErrInvalidInput for a record without a name.
	Append(ctx context.Context, rec *domain.JournalRecord) error

	// List returns matching records ordered by observation time ASC.
	List(ctx context.Context, filter JournalFilter) ([]*domain.JournalRecord, error)
}

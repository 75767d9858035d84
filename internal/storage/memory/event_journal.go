package memory

import (
	"context"
	"sort"
	"sync"

	"market-sync/internal/domain"
	"market-sync/internal/storage"
)

// EventJournal is an in-memory implementation of storage.EventJournal.
type EventJournal struct {
	mu      sync.RWMutex
	records []*domain.JournalRecord
}

// NewEventJournal creates a new in-memory event journal.
func NewEventJournal() *EventJournal {
	return &EventJournal{}
}

// Append adds a record.
func (j *EventJournal) Append(_ context.Context, rec *domain.JournalRecord) error {
	if rec == nil || rec.Name == "" {
		return storage.ErrInvalidInput
	}

	recCopy := *rec
	recCopy.Payload = append([]byte(nil), rec.Payload...)

	j.mu.Lock()
	j.records = append(j.records, &recCopy)
	j.mu.Unlock()
	return nil
}

// List returns matching records ordered by observation time ASC. Records
// observed in the same millisecond keep their append order.
func (j *EventJournal) List(_ context.Context, filter storage.JournalFilter) ([]*domain.JournalRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.JournalRecord
	for _, rec := range j.records {
		if filter.Match(rec) {
			recCopy := *rec
			result = append(result, &recCopy)
		}
	}

	sort.SliceStable(result, func(a, b int) bool {
		return result[a].ObservedAt < result[b].ObservedAt
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.EventJournal = (*EventJournal)(nil)

package events

import (
	"context"
	"fmt"
	"time"

	"market-sync/internal/domain"
	"market-sync/internal/storage"
)

// JournalHandler returns a handler that appends every event it receives to j.
func JournalHandler(j storage.EventJournal, now func() time.Time) Handler {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, ev domain.Event) error {
		rec, err := domain.NewJournalRecord(ev, now().UnixMilli())
		if err != nil {
			return err
		}
		if err := j.Append(ctx, rec); err != nil {
			return fmt.Errorf("journal %s: %w", ev.EventName(), err)
		}
		return nil
	}
}

// RegisterJournal subscribes j to every ledger event name and returns the
// registrations so the caller can remove them.
func RegisterJournal(d *Dispatcher, j storage.EventJournal, now func() time.Time) []HandlerID {
	h := JournalHandler(j, now)
	ids := make([]HandlerID, 0, len(domain.EventNames))
	for _, name := range domain.EventNames {
		ids = append(ids, d.AddEventHandler(name, h))
	}
	return ids
}

package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"market-sync/internal/domain"
	"market-sync/internal/observability"
	"market-sync/internal/storage"
)

// EventJournal implements storage.EventJournal using ClickHouse.
type EventJournal struct {
	conn *Conn
}

// NewEventJournal creates a new EventJournal.
func NewEventJournal(conn *Conn) *EventJournal {
	return &EventJournal{conn: conn}
}

// Compile-time interface check.
var _ storage.EventJournal = (*EventJournal)(nil)

// Append adds a record.
func (j *EventJournal) Append(ctx context.Context, rec *domain.JournalRecord) (err error) {
	if rec == nil || rec.Name == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "journal_append", time.Since(start).Seconds(), err)
	}()

	batch, err := j.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_events (name, item_id, payload, observed_at_ms)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(string(rec.Name), int64(rec.ItemID), string(rec.Payload), rec.ObservedAt); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// List returns matching records ordered by observation time ASC.
func (j *EventJournal) List(ctx context.Context, filter storage.JournalFilter) (result []*domain.JournalRecord, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "journal_list", time.Since(start).Seconds(), err)
	}()

	var (
		where []string
		args  []interface{}
	)
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, string(filter.Name))
	}
	if filter.ItemID != 0 {
		where = append(where, "item_id = ?")
		args = append(args, int64(filter.ItemID))
	}
	if filter.Since != 0 {
		where = append(where, "observed_at_ms >= ?")
		args = append(args, filter.Since)
	}
	if filter.Until != 0 {
		where = append(where, "observed_at_ms <= ?")
		args = append(args, filter.Until)
	}

	query := "SELECT name, item_id, payload, observed_at_ms FROM ledger_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY observed_at_ms ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := j.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name    string
			itemID  int64
			payload string
			rec     domain.JournalRecord
		)
		if err := rows.Scan(&name, &itemID, &payload, &rec.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan ledger event row: %w", err)
		}
		rec.Name = domain.EventName(name)
		rec.ItemID = domain.ItemID(itemID)
		rec.Payload = []byte(payload)
		result = append(result, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger event rows: %w", err)
	}
	return result, nil
}

package ledger

import (
	"context"

	"market-sync/internal/domain"
)

// EventFeed is the ledger's combined event stream.
type EventFeed interface {
	// SubscribeEvents opens the single subscription to all ledger events.
	// The channel is closed when the feed ends; it is not re-established.
	SubscribeEvents(ctx context.Context) (<-chan Notification, error)

	// Close closes the feed.
	Close() error
}

// Notification is one delivery from the feed. Exactly one of Event and Err
// is set; Err marks a delivery the feed could not decode.
type Notification struct {
	Event       domain.Event
	BlockNumber int64
	TxHash      string
	Err         error
}

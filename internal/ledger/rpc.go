package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"market-sync/internal/domain"
)

// Reader defines the ledger's read calls.
type Reader interface {
	// ItemsCount returns the highest assigned item id.
	ItemsCount(ctx context.Context) (int64, error)

	// GetItem retrieves an item. Returns domain.ErrNotFound outside the assigned range.
	GetItem(ctx context.Context, id domain.ItemID) (*domain.Item, error)

	// Owner returns the ledger contract owner.
	Owner(ctx context.Context) (domain.Address, error)

	// PublicationCost returns the current publication fee.
	PublicationCost(ctx context.Context) (decimal.Decimal, error)
}

// Writer defines the ledger's mutating calls. Their effects are observed
// later through the event feed, never through the returned hash.
type Writer interface {
	PublishItem(ctx context.Context, tx TxOpts, contentHash string, initialValue, maxValue decimal.Decimal) (string, error)
	OfferItem(ctx context.Context, tx TxOpts, id domain.ItemID, offerValue decimal.Decimal) (string, error)
	ClaimFunds(ctx context.Context, tx TxOpts, id domain.ItemID) (string, error)
	TransferOwnership(ctx context.Context, tx TxOpts, newOwner domain.Address) (string, error)
	SetPublicationCost(ctx context.Context, tx TxOpts, newCost decimal.Decimal) (string, error)
}

// RPCClient is the full ledger call surface.
type RPCClient interface {
	Reader
	Writer
}

// TxOpts carries the acting address and the attached payment of a write.
type TxOpts struct {
	From  domain.Address
	Value decimal.Decimal
}

// TxReceipt identifies a submitted write.
type TxReceipt struct {
	Hash string
	From domain.Address
}

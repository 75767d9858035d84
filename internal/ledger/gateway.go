package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"market-sync/internal/domain"
	"market-sync/internal/lifecycle"
	"market-sync/internal/observability"
)

// ContentPutter stores a publication's content record and returns its hash.
type ContentPutter interface {
	PutJSON(ctx context.Context, v any) (string, error)
}

// Gateway is the typed façade over the ledger. Its only state is the cached
// publication fee, used as the default payment of PublishItem.
type Gateway struct {
	rpc     RPCClient
	content ContentPutter
	sink    domain.ErrorSink
	logger  *log.Logger

	feeMu sync.RWMutex
	fee   decimal.Decimal
}

// GatewayOptions contains configuration for creating a Gateway.
type GatewayOptions struct {
	RPC        RPCClient
	Content    ContentPutter   // required only by PublishItemContent
	InitialFee decimal.Decimal // fee used until the ledger reports one
	ErrorSink  domain.ErrorSink
	Logger     *log.Logger
}

// NewGateway creates a new ledger gateway.
func NewGateway(opts GatewayOptions) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{
		rpc:     opts.RPC,
		content: opts.Content,
		sink:    opts.ErrorSink,
		logger:  logger,
		fee:     opts.InitialFee,
	}
}

// ItemsCount returns the highest assigned item id.
func (g *Gateway) ItemsCount(ctx context.Context) (int64, error) {
	n, err := g.rpc.ItemsCount(ctx)
	if err != nil {
		observability.RecordLedgerFailure("read", "itemsCount")
		return 0, domain.NewReadFailure("itemsCount", err)
	}
	return n, nil
}

// GetItem retrieves an item. Ids below 1 are rejected without a remote call.
func (g *Gateway) GetItem(ctx context.Context, id domain.ItemID) (*domain.Item, error) {
	if id < 1 {
		return nil, domain.NewReadFailure("getItem", fmt.Errorf("item %d: %w", id, domain.ErrNotFound))
	}
	item, err := g.rpc.GetItem(ctx, id)
	if err != nil {
		observability.RecordLedgerFailure("read", "getItem")
		return nil, domain.NewReadFailure(fmt.Sprintf("getItem(%d)", id), err)
	}
	return item, nil
}

// Owner returns the ledger contract owner.
func (g *Gateway) Owner(ctx context.Context) (domain.Address, error) {
	owner, err := g.rpc.Owner(ctx)
	if err != nil {
		observability.RecordLedgerFailure("read", "owner")
		return "", domain.NewReadFailure("owner", err)
	}
	return owner, nil
}

// PublicationCost reads the current fee from the ledger and caches it.
func (g *Gateway) PublicationCost(ctx context.Context) (decimal.Decimal, error) {
	cost, err := g.rpc.PublicationCost(ctx)
	if err != nil {
		observability.RecordLedgerFailure("read", "publicationCost")
		return decimal.Zero, domain.NewReadFailure("publicationCost", err)
	}
	g.ObservePublicationCost(cost)
	return cost, nil
}

// CachedPublicationCost returns the locally cached fee.
func (g *Gateway) CachedPublicationCost() decimal.Decimal {
	g.feeMu.RLock()
	defer g.feeMu.RUnlock()
	return g.fee
}

// ObservePublicationCost updates the cached fee. The event dispatcher calls
// it for every PublicationCost event before fan-out.
func (g *Gateway) ObservePublicationCost(cost decimal.Decimal) {
	g.feeMu.Lock()
	g.fee = cost
	g.feeMu.Unlock()
}

// PublishItem submits a publication paying the cached fee. An invalid range
// is reported and fails with domain.ErrInvalidRange before the identity or
// the ledger is consulted.
func (g *Gateway) PublishItem(ctx context.Context, id IdentityResolver, contentHash string, initialValue, maxValue decimal.Decimal) (TxReceipt, error) {
	if err := lifecycle.ValidatePublication(initialValue, maxValue); err != nil {
		g.sink.Report(err)
		return TxReceipt{}, err
	}
	return g.send(ctx, id, "publishItem", g.CachedPublicationCost(), func(tx TxOpts) (string, error) {
		return g.rpc.PublishItem(ctx, tx, contentHash, initialValue, maxValue)
	})
}

// PublishItemContent stores record in the content store and publishes its
// hash. The range is validated before anything is stored.
func (g *Gateway) PublishItemContent(ctx context.Context, id IdentityResolver, record any, initialValue, maxValue decimal.Decimal) (TxReceipt, error) {
	if err := lifecycle.ValidatePublication(initialValue, maxValue); err != nil {
		g.sink.Report(err)
		return TxReceipt{}, err
	}
	if g.content == nil {
		return TxReceipt{}, fmt.Errorf("publish item content: no content store configured")
	}
	hash, err := g.content.PutJSON(ctx, record)
	if err != nil {
		err = domain.NewContentFailure("put", err)
		g.sink.Report(err)
		return TxReceipt{}, err
	}
	return g.PublishItem(ctx, id, hash, initialValue, maxValue)
}

// OfferItem places an offer, escrowing maxValue as the upper bound for
// automatic re-bids.
func (g *Gateway) OfferItem(ctx context.Context, id IdentityResolver, itemID domain.ItemID, offerValue, maxValue decimal.Decimal) (TxReceipt, error) {
	return g.send(ctx, id, "offerItem", maxValue, func(tx TxOpts) (string, error) {
		return g.rpc.OfferItem(ctx, tx, itemID, offerValue)
	})
}

// ClaimFunds claims a finished item. Eligibility is exposed by
// lifecycle.CanClaim and enforced by the ledger.
func (g *Gateway) ClaimFunds(ctx context.Context, id IdentityResolver, itemID domain.ItemID) (TxReceipt, error) {
	return g.send(ctx, id, "claimFunds", decimal.Zero, func(tx TxOpts) (string, error) {
		return g.rpc.ClaimFunds(ctx, tx, itemID)
	})
}

// TransferOwnership hands the ledger contract to newOwner.
func (g *Gateway) TransferOwnership(ctx context.Context, id IdentityResolver, newOwner domain.Address) (TxReceipt, error) {
	return g.send(ctx, id, "transferOwnership", decimal.Zero, func(tx TxOpts) (string, error) {
		return g.rpc.TransferOwnership(ctx, tx, newOwner)
	})
}

// SetPublicationCost changes the publication fee. The cached fee changes only
// when the resulting event is observed.
func (g *Gateway) SetPublicationCost(ctx context.Context, id IdentityResolver, newCost decimal.Decimal) (TxReceipt, error) {
	return g.send(ctx, id, "setPublicationCost", decimal.Zero, func(tx TxOpts) (string, error) {
		return g.rpc.SetPublicationCost(ctx, tx, newCost)
	})
}

// send resolves the acting address and submits a write once. Failures are
// reported to the sink and never retried.
func (g *Gateway) send(ctx context.Context, id IdentityResolver, op string, value decimal.Decimal, submit func(TxOpts) (string, error)) (TxReceipt, error) {
	if id == nil {
		return TxReceipt{}, domain.ErrNoActiveAddress
	}
	from, err := id.ActiveAddress(ctx)
	if err != nil {
		err = fmt.Errorf("%s: resolve active address: %w", op, err)
		g.sink.Report(err)
		return TxReceipt{}, err
	}
	if from == "" {
		g.sink.Report(domain.ErrNoActiveAddress)
		return TxReceipt{}, domain.ErrNoActiveAddress
	}

	hash, err := submit(TxOpts{From: from, Value: value})
	if err != nil {
		observability.RecordLedgerFailure("write", op)
		werr := domain.NewWriteFailure(op, err)
		g.sink.Report(werr)
		return TxReceipt{}, werr
	}

	g.logger.Printf("[gateway] %s submitted from %s: tx=%s", op, from, hash)
	return TxReceipt{Hash: hash, From: from}, nil
}

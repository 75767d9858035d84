// Package stub provides an in-memory ledger for tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"market-sync/internal/domain"
	"market-sync/internal/ledger"
)

// ErrInjected is returned for reads configured to fail.
var ErrInjected = errors.New("injected failure")

// Call records one write submitted to the stub.
type Call struct {
	Method string
	Tx     ledger.TxOpts
	Args   []any
}

// Ledger implements ledger.RPCClient and ledger.EventFeed in memory.
// Writes are recorded; publishing also creates the item and emits the
// PublishedItem event so the feed behaves like the real ledger.
type Ledger struct {
	mu        sync.Mutex
	items     map[domain.ItemID]domain.Item
	count     int64
	owner     domain.Address
	fee       decimal.Decimal
	reads     map[domain.ItemID]int
	failReads map[domain.ItemID]error
	failCount error
	failWrite error
	readDelay time.Duration
	calls     []Call
	txSeq     int

	feed chan ledger.Notification
}

// NewLedger creates an empty stub ledger.
func NewLedger() *Ledger {
	return &Ledger{
		items:     make(map[domain.ItemID]domain.Item),
		reads:     make(map[domain.ItemID]int),
		failReads: make(map[domain.ItemID]error),
		feed:      make(chan ledger.Notification, 100),
	}
}

// Compile-time interface checks.
var (
	_ ledger.RPCClient = (*Ledger)(nil)
	_ ledger.EventFeed = (*Ledger)(nil)
)

// AddItem stores item, assigning the next id when item.ID is zero.
func (l *Ledger) AddItem(item domain.Item) domain.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	if item.ID == 0 {
		item.ID = domain.ItemID(l.count + 1)
	}
	if int64(item.ID) > l.count {
		l.count = int64(item.ID)
	}
	l.items[item.ID] = item
	return item
}

// SetItem replaces a stored item.
func (l *Ledger) SetItem(item domain.Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[item.ID] = item
}

// Item returns a stored item.
func (l *Ledger) Item(id domain.ItemID) (domain.Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	item, ok := l.items[id]
	return item, ok
}

// SetOwner sets the contract owner.
func (l *Ledger) SetOwner(owner domain.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owner = owner
}

// SetFee sets the publication fee returned by PublicationCost.
func (l *Ledger) SetFee(fee decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fee = fee
}

// FailRead makes reads of id fail with err (ErrInjected when nil).
func (l *Ledger) FailRead(id domain.ItemID, err error) {
	if err == nil {
		err = ErrInjected
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failReads[id] = err
}

// FailCount makes ItemsCount fail with err.
func (l *Ledger) FailCount(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failCount = err
}

// FailWrites makes every write fail with err.
func (l *Ledger) FailWrites(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failWrite = err
}

// SetReadDelay delays every GetItem call.
func (l *Ledger) SetReadDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readDelay = d
}

// Reads returns how many times id was read.
func (l *Ledger) Reads(id domain.ItemID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads[id]
}

// TotalReads returns the number of GetItem calls.
func (l *Ledger) TotalReads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.reads {
		total += n
	}
	return total
}

// Calls returns the recorded writes.
func (l *Ledger) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// Emit pushes an event onto the feed.
func (l *Ledger) Emit(ev domain.Event) {
	l.feed <- ledger.Notification{Event: ev}
}

// EmitError pushes a delivery failure onto the feed.
func (l *Ledger) EmitError(err error) {
	l.feed <- ledger.Notification{Err: err}
}

// ItemsCount returns the highest assigned id.
func (l *Ledger) ItemsCount(_ context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCount != nil {
		return 0, l.failCount
	}
	return l.count, nil
}

// GetItem returns a stored item or domain.ErrNotFound.
func (l *Ledger) GetItem(ctx context.Context, id domain.ItemID) (*domain.Item, error) {
	l.mu.Lock()
	delay := l.readDelay
	l.reads[id]++
	failErr := l.failReads[id]
	item, ok := l.items[id]
	l.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	return &item, nil
}

// Owner returns the contract owner.
func (l *Ledger) Owner(_ context.Context) (domain.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner, nil
}

// PublicationCost returns the configured fee.
func (l *Ledger) PublicationCost(_ context.Context) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fee, nil
}

// PublishItem records the call, creates the item and emits PublishedItem.
func (l *Ledger) PublishItem(_ context.Context, tx ledger.TxOpts, contentHash string, initialValue, maxValue decimal.Decimal) (string, error) {
	hash, err := l.record("market_publishItem", tx, contentHash, initialValue, maxValue)
	if err != nil {
		return "", err
	}
	item := l.AddItem(domain.Item{
		Owner:        tx.From,
		State:        domain.StatePublished,
		InitialValue: initialValue,
		MaxValue:     maxValue,
		ContentHash:  contentHash,
	})
	l.Emit(domain.PublishedItem{ItemID: item.ID})
	return hash, nil
}

// OfferItem records the call.
func (l *Ledger) OfferItem(_ context.Context, tx ledger.TxOpts, id domain.ItemID, offerValue decimal.Decimal) (string, error) {
	return l.record("market_offerItem", tx, id, offerValue)
}

// ClaimFunds records the call.
func (l *Ledger) ClaimFunds(_ context.Context, tx ledger.TxOpts, id domain.ItemID) (string, error) {
	return l.record("market_claimFunds", tx, id)
}

// TransferOwnership records the call.
func (l *Ledger) TransferOwnership(_ context.Context, tx ledger.TxOpts, newOwner domain.Address) (string, error) {
	return l.record("market_transferOwnership", tx, newOwner)
}

// SetPublicationCost records the call.
func (l *Ledger) SetPublicationCost(_ context.Context, tx ledger.TxOpts, newCost decimal.Decimal) (string, error) {
	return l.record("market_setPublicationCost", tx, newCost)
}

func (l *Ledger) record(method string, tx ledger.TxOpts, args ...any) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, Call{Method: method, Tx: tx, Args: args})
	if l.failWrite != nil {
		return "", l.failWrite
	}
	l.txSeq++
	return fmt.Sprintf("0xtx%04d", l.txSeq), nil
}

// SubscribeEvents returns the stub feed.
func (l *Ledger) SubscribeEvents(_ context.Context) (<-chan ledger.Notification, error) {
	return l.feed, nil
}

// Close closes the feed channel.
func (l *Ledger) Close() error {
	close(l.feed)
	return nil
}

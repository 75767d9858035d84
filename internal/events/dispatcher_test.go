package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sync/internal/domain"
	"market-sync/internal/ledger"
	"market-sync/internal/ledger/stub"
	"market-sync/internal/storage"
	"market-sync/internal/storage/memory"
)

type feeRecorder struct {
	mu   sync.Mutex
	cost decimal.Decimal
}

func (f *feeRecorder) ObservePublicationCost(cost decimal.Decimal) {
	f.mu.Lock()
	f.cost = cost
	f.mu.Unlock()
}

func (f *feeRecorder) get() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cost
}

func TestDispatcher_FailingHandlerIsolated(t *testing.T) {
	var reported []error
	d := NewDispatcher(Options{ErrorSink: func(err error) { reported = append(reported, err) }})
	ctx := context.Background()

	var secondCalls, otherCalls int
	d.AddEventHandler(domain.EventValueChanged, func(context.Context, domain.Event) error {
		return errors.New("boom")
	})
	d.AddEventHandler(domain.EventValueChanged, func(context.Context, domain.Event) error {
		secondCalls++
		return nil
	})
	d.AddEventHandler(domain.EventItemSold, func(context.Context, domain.Event) error {
		otherCalls++
		return nil
	})

	d.Dispatch(ctx, domain.ValueChanged{ItemID: 1})
	d.Dispatch(ctx, domain.ItemSold{ItemID: 1})

	assert.Equal(t, 1, secondCalls)
	assert.Equal(t, 1, otherCalls)

	require.Len(t, reported, 1)
	var herr *domain.HandlerError
	require.ErrorAs(t, reported[0], &herr)
	assert.Equal(t, domain.EventValueChanged, herr.Event)
	assert.Equal(t, 0, herr.Index)
}

func TestDispatcher_PanicRecovered(t *testing.T) {
	d := NewDispatcher(Options{})
	ctx := context.Background()

	ran := false
	d.AddEventHandler(domain.EventItemPaid, func(context.Context, domain.Event) error {
		panic("handler bug")
	})
	d.AddEventHandler(domain.EventItemPaid, func(context.Context, domain.Event) error {
		ran = true
		return nil
	})

	assert.NotPanics(t, func() { d.Dispatch(ctx, domain.ItemPaid{ItemID: 2}) })
	assert.True(t, ran)
}

func TestDispatcher_RegistrationOrder(t *testing.T) {
	d := NewDispatcher(Options{})

	var order []int
	for i := 0; i < 4; i++ {
		i := i
		d.AddEventHandler(domain.EventPublishedItem, func(context.Context, domain.Event) error {
			order = append(order, i)
			return nil
		})
	}

	d.Dispatch(context.Background(), domain.PublishedItem{ItemID: 1})
	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestDispatcher_DuplicateHandlerRunsTwice(t *testing.T) {
	d := NewDispatcher(Options{})

	calls := 0
	h := func(context.Context, domain.Event) error {
		calls++
		return nil
	}
	d.AddEventHandler(domain.EventItemSold, h)
	d.AddEventHandler(domain.EventItemSold, h)

	d.Dispatch(context.Background(), domain.ItemSold{ItemID: 1})
	assert.Equal(t, 2, calls)
}

func TestDispatcher_FeeUpdatedBeforeFanOut(t *testing.T) {
	fee := &feeRecorder{}
	d := NewDispatcher(Options{Fee: fee})

	var seen decimal.Decimal
	d.AddEventHandler(domain.EventPublicationCost, func(context.Context, domain.Event) error {
		seen = fee.get()
		return nil
	})

	d.Dispatch(context.Background(), domain.PublicationCost{Cost: decimal.NewFromInt(77)})
	assert.True(t, seen.Equal(decimal.NewFromInt(77)), "handler saw fee %s", seen)
}

func TestDispatcher_FeeUpdatedWithoutHandlers(t *testing.T) {
	fee := &feeRecorder{}
	d := NewDispatcher(Options{Fee: fee})

	d.Dispatch(context.Background(), domain.PublicationCost{Cost: decimal.NewFromInt(3)})
	assert.True(t, fee.get().Equal(decimal.NewFromInt(3)))
}

func TestDispatcher_RemoveAndClear(t *testing.T) {
	d := NewDispatcher(Options{})
	noop := func(context.Context, domain.Event) error { return nil }

	a := d.AddEventHandler(domain.EventValueChanged, noop)
	d.AddEventHandler(domain.EventValueChanged, noop)
	d.AddEventHandler(domain.EventItemSold, noop)

	assert.True(t, d.RemoveEventHandler(a))
	assert.False(t, d.RemoveEventHandler(a))
	assert.Equal(t, 1, d.HandlerCount(domain.EventValueChanged))

	d.ClearEventHandler(domain.EventValueChanged)
	assert.Equal(t, 0, d.HandlerCount(domain.EventValueChanged))
	assert.Equal(t, 1, d.HandlerCount(domain.EventItemSold))

	d.ClearAllEventHandlers()
	assert.Equal(t, 0, d.HandlerCount(domain.EventItemSold))
}

func TestDispatcher_HandlerMayMutateRegistry(t *testing.T) {
	d := NewDispatcher(Options{})

	var id HandlerID
	calls := 0
	id = d.AddEventHandler(domain.EventItemSold, func(context.Context, domain.Event) error {
		calls++
		d.RemoveEventHandler(id)
		d.AddEventHandler(domain.EventItemPaid, func(context.Context, domain.Event) error { return nil })
		return nil
	})

	d.Dispatch(context.Background(), domain.ItemSold{ItemID: 1})
	d.Dispatch(context.Background(), domain.ItemSold{ItemID: 1})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, d.HandlerCount(domain.EventItemPaid))
}

func TestDispatcher_RunDrainsFeed(t *testing.T) {
	l := stub.NewLedger()
	d := NewDispatcher(Options{})

	got := make(chan domain.Event, 10)
	d.AddEventHandler(domain.EventPublishedItem, func(_ context.Context, ev domain.Event) error {
		got <- ev
		return nil
	})

	l.EmitError(errors.New("garbled"))
	l.Emit(domain.PublishedItem{ItemID: 9})
	require.NoError(t, l.Close())

	err := d.Run(context.Background(), l)
	require.NoError(t, err)

	require.Len(t, got, 1)
	ev := <-got
	assert.Equal(t, domain.ItemID(9), ev.(domain.PublishedItem).ItemID)
}

func TestDispatcher_RunCancelled(t *testing.T) {
	d := NewDispatcher(Options{})
	ch := make(chan ledger.Notification)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.Drain(ctx, ch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJournalHandler(t *testing.T) {
	d := NewDispatcher(Options{})
	journal := memory.NewEventJournal()
	now := func() time.Time { return time.UnixMilli(1700000000000) }

	ids := RegisterJournal(d, journal, now)
	assert.Len(t, ids, len(domain.EventNames))

	ctx := context.Background()
	d.Dispatch(ctx, domain.ValueChanged{ItemID: 4})
	d.Dispatch(ctx, domain.OwnershipTransferred{PreviousOwner: "0xa", NewOwner: "0xb"})

	recs, err := journal.List(ctx, storage.JournalFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.EventValueChanged, recs[0].Name)
	assert.Equal(t, domain.ItemID(4), recs[0].ItemID)
	assert.Equal(t, int64(1700000000000), recs[0].ObservedAt)
	assert.Equal(t, domain.ItemID(0), recs[1].ItemID)
	assert.JSONEq(t, `{"previousOwner":"0xa","newOwner":"0xb"}`, string(recs[1].Payload))
}

// Package events demultiplexes the ledger event feed to named handlers.
package events

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"market-sync/internal/domain"
	"market-sync/internal/ledger"
	"market-sync/internal/observability"
)

// Handler processes one event. A returned error or a panic is a handler
// failure: it is logged and the remaining handlers still run.
type Handler func(ctx context.Context, ev domain.Event) error

// HandlerID identifies one registration.
type HandlerID string

// FeeObserver receives publication fee changes before handlers run.
type FeeObserver interface {
	ObservePublicationCost(cost decimal.Decimal)
}

type registration struct {
	id HandlerID
	fn Handler
}

// Options configures a Dispatcher.
type Options struct {
	// Fee is updated synchronously for every PublicationCost event.
	Fee FeeObserver
	// ErrorSink receives handler failures in addition to the log.
	ErrorSink domain.ErrorSink
	Logger    *log.Logger
}

// Dispatcher owns the handler registry. Handlers for one event name run in
// registration order; the registry may be changed concurrently with dispatch.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.EventName][]registration
	byID     map[HandlerID]domain.EventName

	fee    FeeObserver
	sink   domain.ErrorSink
	logger *log.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		handlers: make(map[domain.EventName][]registration),
		byID:     make(map[HandlerID]domain.EventName),
		fee:      opts.Fee,
		sink:     opts.ErrorSink,
		logger:   logger,
	}
}

// AddEventHandler appends fn to the handlers for name. The same function may
// be registered more than once and then runs once per registration.
func (d *Dispatcher) AddEventHandler(name domain.EventName, fn Handler) HandlerID {
	id := HandlerID(uuid.NewString())

	d.mu.Lock()
	d.handlers[name] = append(d.handlers[name], registration{id: id, fn: fn})
	d.byID[id] = name
	n := len(d.byID)
	d.mu.Unlock()

	observability.SetHandlerCount(n)
	return id
}

// RemoveEventHandler removes a single registration. Returns false when id is
// not registered.
func (d *Dispatcher) RemoveEventHandler(id HandlerID) bool {
	d.mu.Lock()
	name, ok := d.byID[id]
	if !ok {
		d.mu.Unlock()
		return false
	}
	delete(d.byID, id)

	regs := d.handlers[name]
	kept := make([]registration, 0, len(regs))
	for _, r := range regs {
		if r.id != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(d.handlers, name)
	} else {
		d.handlers[name] = kept
	}
	n := len(d.byID)
	d.mu.Unlock()

	observability.SetHandlerCount(n)
	return true
}

// ClearEventHandler removes every handler for name.
func (d *Dispatcher) ClearEventHandler(name domain.EventName) {
	d.mu.Lock()
	for _, r := range d.handlers[name] {
		delete(d.byID, r.id)
	}
	delete(d.handlers, name)
	n := len(d.byID)
	d.mu.Unlock()

	observability.SetHandlerCount(n)
}

// ClearAllEventHandlers resets the registry.
func (d *Dispatcher) ClearAllEventHandlers() {
	d.mu.Lock()
	d.handlers = make(map[domain.EventName][]registration)
	d.byID = make(map[HandlerID]domain.EventName)
	d.mu.Unlock()

	observability.SetHandlerCount(0)
}

// HandlerCount returns the number of handlers registered for name.
func (d *Dispatcher) HandlerCount(name domain.EventName) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[name])
}

// Dispatch delivers ev to its handlers. The handler list is copied first, so
// handlers may add or remove registrations without deadlocking.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Event) {
	name := ev.EventName()
	observability.RecordEventDispatched(string(name))

	if cost, ok := ev.(domain.PublicationCost); ok && d.fee != nil {
		d.fee.ObservePublicationCost(cost.Cost)
	}

	d.mu.RLock()
	regs := make([]registration, len(d.handlers[name]))
	copy(regs, d.handlers[name])
	d.mu.RUnlock()

	for i, r := range regs {
		if err := invoke(ctx, r.fn, ev); err != nil {
			herr := &domain.HandlerError{Event: name, Index: i, Err: err}
			observability.RecordHandlerFailure(string(name))
			d.logger.Printf("[dispatcher] %v", herr)
			d.sink.Report(herr)
		}
	}
}

// invoke runs fn, converting a panic into an error.
func invoke(ctx context.Context, fn Handler, ev domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, ev)
}

// Run opens the single feed subscription and dispatches every delivery until
// the feed ends or ctx is cancelled. Undecodable deliveries are logged and
// dropped. The subscription is not re-established when the feed ends.
func (d *Dispatcher) Run(ctx context.Context, feed ledger.EventFeed) error {
	ch, err := feed.SubscribeEvents(ctx)
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	return d.Drain(ctx, ch)
}

// Drain dispatches notifications from ch until it is closed or ctx is done.
func (d *Dispatcher) Drain(ctx context.Context, ch <-chan ledger.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				d.logger.Printf("[dispatcher] event feed closed")
				return nil
			}
			if n.Err != nil {
				d.logger.Printf("[dispatcher] dropped delivery (block %d, tx %s): %v", n.BlockNumber, n.TxHash, n.Err)
				continue
			}
			if n.Event == nil {
				continue
			}
			d.Dispatch(ctx, n.Event)
		}
	}
}

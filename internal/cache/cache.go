// Package cache maintains the ordered, observable view of marketplace items,
// kept consistent with the ledger through its event feed.
package cache

import (
	"context"
	"fmt"
	"log"
	"maps"
	"sync"
	"time"

	"market-sync/internal/content"
	"market-sync/internal/domain"
	"market-sync/internal/events"
	"market-sync/internal/lifecycle"
	"market-sync/internal/observability"
	"market-sync/internal/retrieval"
)

// ItemReader reads single items, typically the ledger gateway.
type ItemReader interface {
	GetItem(ctx context.Context, id domain.ItemID) (*domain.Item, error)
}

// BulkReader performs full-range retrievals.
type BulkReader interface {
	RetrieveAll(ctx context.Context, pred retrieval.Predicate) ([]domain.Item, error)
}

// Registry is the subset of the event dispatcher the cache subscribes with.
type Registry interface {
	AddEventHandler(name domain.EventName, fn events.Handler) events.HandlerID
	RemoveEventHandler(id events.HandlerID) bool
}

// ChangeKind describes a mutation of the entry sequence.
type ChangeKind int

const (
	// ChangeInserted means Entry was added at Index.
	ChangeInserted ChangeKind = iota
	// ChangeReplaced means the entry at Index was replaced by Entry.
	ChangeReplaced
	// ChangeCleared means the sequence was emptied.
	ChangeCleared
	// ChangeTransientCleared means the entry at Index is no longer marked as just changed.
	ChangeTransientCleared
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInserted:
		return "inserted"
	case ChangeReplaced:
		return "replaced"
	case ChangeCleared:
		return "cleared"
	case ChangeTransientCleared:
		return "transient-cleared"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

// Change is delivered to observers after each mutation.
type Change struct {
	Kind  ChangeKind
	Index int
	Entry domain.CacheEntry
}

// Observer receives changes. It runs without the cache lock held and may
// call back into the cache.
type Observer func(Change)

// Options configures a Cache.
type Options struct {
	Items     ItemReader
	Retriever BulkReader
	// Content is fetched once per distinct hash within a bulk load.
	Content   content.Store
	Events    Registry

	// ActualAddress is the acting address for ownership views.
	ActualAddress domain.Address
	// TransientDelay defaults to DefaultTransientDelay.
	TransientDelay time.Duration

	ErrorSink domain.ErrorSink
	Logger    *log.Logger
}

// Cache holds exactly one entry per loaded item id. New items are placed at
// the head; updates replace entries in place.
type Cache struct {
	items     ItemReader
	retriever BulkReader
	content   content.Store
	events    Registry
	sink      domain.ErrorSink
	logger    *log.Logger

	mu      sync.Mutex
	entries []domain.CacheEntry
	loaded  bool
	actual  domain.Address
	// generation invalidates content fetches started before a clear
	generation uint64
	// pending holds bulk-loaded items whose content is still resolving
	pending map[domain.ItemID]pendingEntry
	// loading counts bulk reads in flight; dirty collects the ids of
	// ValueChanged events seen while loading > 0
	loading int
	dirty   map[domain.ItemID]struct{}

	handlers     []events.HandlerID
	incremental  bool
	reloadOnSale bool
	claimOwner   domain.Address

	obsMu     sync.RWMutex
	observers []Observer

	timers   *transientTimers
	inflight sync.WaitGroup
}

// New creates an empty, unloaded cache.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{
		items:     opts.Items,
		retriever: opts.Retriever,
		content:   opts.Content,
		events:    opts.Events,
		sink:      opts.ErrorSink,
		logger:    logger,
		actual:    opts.ActualAddress,
		pending:   make(map[domain.ItemID]pendingEntry),
		dirty:     make(map[domain.ItemID]struct{}),
		timers:    newTransientTimers(opts.TransientDelay),
	}
}

type pendingEntry struct {
	item domain.Item
	// changed is set when an event updated the item after the bulk read
	changed bool
	// refresh means the item must be read again before it is appended
	refresh bool
}

// Load subscribes to PublishedItem and ValueChanged, then retrieves every
// item. Events delivered during the read are applied on top of it. Loaded
// becomes true once the ledger read completes; content resolution continues
// in the background and each entry is appended as it resolves. A failed read
// leaves the cache unloaded and unsubscribed.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	subscribe := !c.incremental
	c.incremental = true
	c.mu.Unlock()

	var ids []events.HandlerID
	if subscribe {
		ids = append(ids,
			c.subscribe(domain.EventPublishedItem, c.onPublished),
			c.subscribe(domain.EventValueChanged, c.onValueChanged),
		)
	}

	if err := c.bulkLoad(ctx, retrieval.All); err != nil {
		// Already reported by the retriever
		if subscribe {
			c.unsubscribe(ids)
			c.mu.Lock()
			c.incremental = false
			c.mu.Unlock()
		}
		return err
	}
	observability.RecordCacheReload("full")

	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// LoadFiltered clears the view and repopulates it with the items owner can
// claim. ItemSold and ItemPaid events trigger a full filtered reload.
func (c *Cache) LoadFiltered(ctx context.Context, owner domain.Address) error {
	c.clear()

	c.mu.Lock()
	c.claimOwner = owner
	subscribe := !c.reloadOnSale
	c.reloadOnSale = true
	c.mu.Unlock()

	if subscribe {
		c.subscribe(domain.EventItemSold, c.onSaleStateChanged)
		c.subscribe(domain.EventItemPaid, c.onSaleStateChanged)
	}

	if err := c.bulkLoad(ctx, lifecycle.Claimable(owner)); err != nil {
		return err
	}
	observability.RecordCacheReload("filtered")
	return nil
}

// InstallClaimList sets up the claimable-items view for the acting address.
// Without an acting address the view stays empty and is only marked loaded.
func (c *Cache) InstallClaimList(ctx context.Context) error {
	actual := c.ActualAddress()
	if actual == "" {
		c.mu.Lock()
		c.loaded = true
		subscribe := !c.reloadOnSale
		c.reloadOnSale = true
		c.mu.Unlock()

		if subscribe {
			c.subscribe(domain.EventItemSold, c.onSaleStateChanged)
			c.subscribe(domain.EventItemPaid, c.onSaleStateChanged)
		}
		return nil
	}

	if err := c.LoadFiltered(ctx, actual); err != nil {
		return err
	}
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Unload removes the event handlers registered by this cache. Handlers
// registered by others are untouched.
func (c *Cache) Unload() {
	c.mu.Lock()
	handlers := c.handlers
	c.handlers = nil
	c.incremental = false
	c.reloadOnSale = false
	c.mu.Unlock()

	for _, id := range handlers {
		c.events.RemoveEventHandler(id)
	}
}

// Close unloads the cache and cancels pending transient reversions.
func (c *Cache) Close() {
	c.Unload()
	c.timers.stop()
}

// Wait blocks until every in-flight content fetch has been applied.
func (c *Cache) Wait() {
	c.inflight.Wait()
}

// Observe registers fn for change notifications.
func (c *Cache) Observe(fn Observer) {
	c.obsMu.Lock()
	c.observers = append(c.observers, fn)
	c.obsMu.Unlock()
}

// Snapshot returns a copy of the entry sequence.
func (c *Cache) Snapshot() []domain.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CacheEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entry returns the entry for id.
func (c *Cache) Entry(id domain.ItemID) (domain.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		return c.entries[i], true
	}
	return domain.CacheEntry{}, false
}

// Loaded reports whether the initial ledger read has completed.
func (c *Cache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// ActualAddress returns the acting address.
func (c *Cache) ActualAddress() domain.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actual
}

// SetActualAddress changes the acting address used by the views.
func (c *Cache) SetActualAddress(addr domain.Address) {
	c.mu.Lock()
	c.actual = addr
	c.mu.Unlock()
}

func (c *Cache) subscribe(name domain.EventName, fn events.Handler) events.HandlerID {
	id := c.events.AddEventHandler(name, fn)
	c.mu.Lock()
	c.handlers = append(c.handlers, id)
	c.mu.Unlock()
	return id
}

func (c *Cache) unsubscribe(ids []events.HandlerID) {
	c.mu.Lock()
	kept := c.handlers[:0]
	for _, h := range c.handlers {
		drop := false
		for _, id := range ids {
			if h == id {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, h)
		}
	}
	c.handlers = kept
	c.mu.Unlock()

	for _, id := range ids {
		c.events.RemoveEventHandler(id)
	}
}

// bulkLoad retrieves the items matching pred and starts resolving their
// content. The read result is registered as pending under the same lock
// that ends the read, so every ValueChanged is either seen during the read
// or applied to a pending or loaded entry.
func (c *Cache) bulkLoad(ctx context.Context, pred retrieval.Predicate) error {
	c.mu.Lock()
	c.loading++
	gen := c.generation
	c.mu.Unlock()

	items, err := c.retriever.RetrieveAll(ctx, pred)

	c.mu.Lock()
	c.loading--
	dirty := maps.Clone(c.dirty)
	if c.loading == 0 {
		clear(c.dirty)
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if gen != c.generation {
		// Cleared during the read; the result belongs to a discarded view
		c.mu.Unlock()
		return nil
	}
	var ids []domain.ItemID
	for _, item := range items {
		if c.indexOf(item.ID) >= 0 {
			continue
		}
		if _, ok := c.pending[item.ID]; ok {
			continue
		}
		_, refresh := dirty[item.ID]
		c.pending[item.ID] = pendingEntry{item: item, refresh: refresh}
		ids = append(ids, item.ID)
	}
	c.mu.Unlock()

	// Fetches run to completion even if the caller's context ends
	fetchCtx := context.WithoutCancel(ctx)
	fetches := newContentFetches(fetchCtx, c)
	for _, id := range ids {
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			c.settle(fetchCtx, gen, id, fetches)
		}()
	}
	return nil
}

// settle resolves the content of a pending item and appends its entry.
// When an event changes the item's hash while a fetch is running, the new
// hash is fetched before the entry is appended.
func (c *Cache) settle(ctx context.Context, gen uint64, id domain.ItemID, fetches *contentFetches) {
	c.mu.Lock()
	p, ok := c.pending[id]
	c.mu.Unlock()
	if ok && p.refresh {
		// Changed during the read, which may have returned an older value
		if item, ok := c.fetchItem(ctx, id); ok {
			c.updatePending(gen, *item)
		}
	}

	for {
		c.mu.Lock()
		p, ok := c.pending[id]
		if gen != c.generation || !ok {
			c.mu.Unlock()
			return
		}
		hash := p.item.ContentHash
		c.mu.Unlock()

		rec := fetches.get(hash)

		c.mu.Lock()
		p, ok = c.pending[id]
		if gen != c.generation || !ok {
			c.mu.Unlock()
			return
		}
		if p.item.ContentHash != hash {
			c.mu.Unlock()
			continue
		}
		delete(c.pending, id)
		if c.indexOf(id) >= 0 {
			c.mu.Unlock()
			return
		}
		entry := domain.CacheEntry{Content: rec, Item: p.item, Transient: p.changed}
		c.entries = append(c.entries, entry)
		change := Change{Kind: ChangeInserted, Index: len(c.entries) - 1, Entry: entry}
		n := len(c.entries)
		c.mu.Unlock()

		if p.changed {
			c.scheduleRevert(id)
		}
		observability.SetCacheEntries(n)
		c.notify(change)
		return
	}
}

// updatePending applies a fresh read to a pending item. It reports whether
// the item was pending in generation gen.
func (c *Cache) updatePending(gen uint64, item domain.Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[item.ID]
	if gen != c.generation || !ok {
		return false
	}
	if err := lifecycle.ValidateTransition(p.item.State, item.State); err != nil {
		c.logger.Printf("[cache] item %d: ignoring stale update: %v", item.ID, err)
		return true
	}
	c.pending[item.ID] = pendingEntry{item: item, changed: true}
	return true
}

type contentFetch struct {
	once sync.Once
	rec  *domain.ContentRecord
}

// contentFetches resolves each hash at most once for one bulk load.
type contentFetches struct {
	c   *Cache
	ctx context.Context

	mu     sync.Mutex
	byHash map[string]*contentFetch
}

func newContentFetches(ctx context.Context, c *Cache) *contentFetches {
	return &contentFetches{c: c, ctx: ctx, byHash: make(map[string]*contentFetch)}
}

func (f *contentFetches) get(hash string) *domain.ContentRecord {
	f.mu.Lock()
	fetch, ok := f.byHash[hash]
	if !ok {
		fetch = &contentFetch{}
		f.byHash[hash] = fetch
	}
	f.mu.Unlock()

	fetch.once.Do(func() { fetch.rec = f.c.resolve(f.ctx, hash) })
	return fetch.rec
}

// resolve fetches a content record. Failures are reported and leave the
// content pending.
func (c *Cache) resolve(ctx context.Context, hash string) *domain.ContentRecord {
	if hash == "" || c.content == nil {
		return nil
	}
	rec, err := content.Resolve(ctx, c.content, hash)
	if err != nil {
		err = domain.NewContentFailure(fmt.Sprintf("get(%s)", hash), err)
		c.logger.Printf("[cache] %v", err)
		c.sink.Report(err)
		return nil
	}
	return rec
}

func (c *Cache) fetchItem(ctx context.Context, id domain.ItemID) (*domain.Item, bool) {
	item, err := c.items.GetItem(ctx, id)
	if err != nil {
		if !domain.IsReadFailure(err) {
			err = domain.NewReadFailure(fmt.Sprintf("getItem(%d)", id), err)
		}
		c.logger.Printf("[cache] %v", err)
		c.sink.Report(err)
		return nil, false
	}
	return item, true
}

// onPublished inserts the new item at the head, marked as just changed.
func (c *Cache) onPublished(ctx context.Context, ev domain.Event) error {
	id := ev.(domain.PublishedItem).ItemID

	item, ok := c.fetchItem(ctx, id)
	if !ok {
		return nil
	}
	rec := c.resolve(ctx, item.ContentHash)
	entry := domain.CacheEntry{Content: rec, Item: *item, Transient: true}

	c.mu.Lock()
	// The event supersedes a bulk-loaded copy still resolving
	delete(c.pending, id)
	var change Change
	if i := c.indexOf(id); i >= 0 {
		c.entries[i] = entry
		change = Change{Kind: ChangeReplaced, Index: i, Entry: entry}
	} else {
		c.entries = append([]domain.CacheEntry{entry}, c.entries...)
		change = Change{Kind: ChangeInserted, Index: 0, Entry: entry}
	}
	n := len(c.entries)
	c.mu.Unlock()

	c.scheduleRevert(id)
	observability.SetCacheEntries(n)
	c.notify(change)
	return nil
}

// onValueChanged replaces a loaded entry in place. An item whose content is
// still resolving is updated before its entry is appended, and an event seen
// during a bulk read marks the id for a fresh read. Other events for items
// outside the view and stale state regressions are ignored.
func (c *Cache) onValueChanged(ctx context.Context, ev domain.Event) error {
	id := ev.(domain.ValueChanged).ItemID

	c.mu.Lock()
	var prev domain.CacheEntry
	i := c.indexOf(id)
	_, pending := c.pending[id]
	switch {
	case i >= 0:
		prev = c.entries[i]
	case pending:
	case c.loading > 0:
		c.dirty[id] = struct{}{}
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	c.mu.Unlock()

	item, ok := c.fetchItem(ctx, id)
	if !ok {
		return nil
	}
	if c.updatePending(gen, *item) {
		return nil
	}

	rec := prev.Content
	if rec == nil || rec.Hash != item.ContentHash {
		rec = c.resolve(ctx, item.ContentHash)
	}

	c.mu.Lock()
	i = c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return nil
	}
	if err := lifecycle.ValidateTransition(c.entries[i].Item.State, item.State); err != nil {
		c.mu.Unlock()
		c.logger.Printf("[cache] item %d: ignoring stale update: %v", id, err)
		return nil
	}
	entry := domain.CacheEntry{Content: rec, Item: *item, Transient: true}
	c.entries[i] = entry
	c.mu.Unlock()

	c.scheduleRevert(id)
	c.notify(Change{Kind: ChangeReplaced, Index: i, Entry: entry})
	return nil
}

// onSaleStateChanged reloads the claimable view.
func (c *Cache) onSaleStateChanged(ctx context.Context, _ domain.Event) error {
	c.mu.Lock()
	owner := c.claimOwner
	if owner == "" {
		owner = c.actual
	}
	c.mu.Unlock()

	if owner == "" {
		return nil
	}
	// Failures were reported by the retriever
	_ = c.LoadFiltered(ctx, owner)
	return nil
}

// scheduleRevert clears the transient flag of id after the delay, on
// whatever entry is current at that time.
func (c *Cache) scheduleRevert(id domain.ItemID) {
	c.timers.schedule(id, func() { c.clearTransient(id) })
}

func (c *Cache) clearTransient(id domain.ItemID) {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 || !c.entries[i].Transient {
		c.mu.Unlock()
		return
	}
	c.entries[i].Transient = false
	entry := c.entries[i]
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeTransientCleared, Index: i, Entry: entry})
}

func (c *Cache) clear() {
	c.mu.Lock()
	c.entries = nil
	c.generation++
	c.pending = make(map[domain.ItemID]pendingEntry)
	c.mu.Unlock()

	observability.SetCacheEntries(0)
	c.notify(Change{Kind: ChangeCleared, Index: -1})
}

// indexOf must be called with mu held.
func (c *Cache) indexOf(id domain.ItemID) int {
	for i := range c.entries {
		if c.entries[i].Item.ID == id {
			return i
		}
	}
	return -1
}

func (c *Cache) notify(change Change) {
	c.obsMu.RLock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.obsMu.RUnlock()

	for _, fn := range observers {
		fn(change)
	}
}

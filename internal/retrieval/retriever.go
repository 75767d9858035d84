// Package retrieval implements backward, windowed, predicate-filtered bulk
// reads over the ledger's item id space.
package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"market-sync/internal/domain"
	"market-sync/internal/observability"
)

// ItemSource is the subset of the ledger gateway the retriever reads from.
type ItemSource interface {
	ItemsCount(ctx context.Context) (int64, error)
	GetItem(ctx context.Context, id domain.ItemID) (*domain.Item, error)
}

// Predicate selects items to keep.
type Predicate func(domain.Item) bool

// All matches every item.
func All(domain.Item) bool { return true }

// Retriever reads items newest-first in bounded windows. Reads within a
// window run concurrently; windows run strictly one after another.
type Retriever struct {
	source ItemSource
	sink   domain.ErrorSink
}

// NewRetriever creates a retriever over source. Read failures are reported to sink.
func NewRetriever(source ItemSource, sink domain.ErrorSink) *Retriever {
	return &Retriever{source: source, sink: sink}
}

// RetrieveWindow returns the first count items matching pred when scanning
// ids from `from` down to 1, in descending id order. Each window holds
// min(remaining count, remaining ids) ids. Any read failure aborts the call
// and no partial result is returned.
func (r *Retriever) RetrieveWindow(ctx context.Context, from, count int64, pred Predicate) ([]domain.Item, error) {
	if pred == nil {
		pred = All
	}
	if from < 0 {
		from = 0
	}

	var result []domain.Item
	remaining := count
	for from >= 1 && remaining > 0 {
		size := min(remaining, from)
		low := from - size + 1

		items, err := r.readWindow(ctx, low, from)
		if err != nil {
			r.sink.Report(err)
			return nil, err
		}

		for _, item := range items {
			if pred(item) {
				result = append(result, item)
			}
		}

		remaining = count - int64(len(result))
		from = low - 1
	}

	if int64(len(result)) > count {
		result = result[:count]
	}
	if result == nil {
		result = []domain.Item{}
	}
	return result, nil
}

// RetrieveAll returns every item matching pred, newest first.
func (r *Retriever) RetrieveAll(ctx context.Context, pred Predicate) ([]domain.Item, error) {
	n, err := r.source.ItemsCount(ctx)
	if err != nil {
		err = asReadFailure("itemsCount", err)
		r.sink.Report(err)
		return nil, err
	}
	return r.RetrieveWindow(ctx, n, n, pred)
}

// readWindow reads ids [low, high] concurrently and returns them in
// descending id order.
func (r *Retriever) readWindow(ctx context.Context, low, high int64) ([]domain.Item, error) {
	size := int(high - low + 1)
	observability.RecordRetrievalWindow(size)

	items := make([]domain.Item, size)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < size; i++ {
		id := domain.ItemID(high - int64(i))
		g.Go(func() error {
			item, err := r.source.GetItem(gctx, id)
			if err != nil {
				return asReadFailure(fmt.Sprintf("getItem(%d)", id), err)
			}
			items[i] = *item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// asReadFailure keeps an existing read failure and wraps anything else.
func asReadFailure(op string, err error) error {
	if domain.IsReadFailure(err) {
		return err
	}
	return domain.NewReadFailure(op, err)
}

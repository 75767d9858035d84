// Package lifecycle holds the item state machine rules. It performs no I/O:
// transitions are driven by ledger mutations and this package only validates
// them and derives eligibility for the presentation layer.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"market-sync/internal/domain"
)

// ValidateTransition checks that an item moves from one state to another
// without going backwards. Staying in the same state is allowed, since
// value changes are observed without a state change.
func ValidateTransition(from, to domain.State) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: unknown state %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	if to < from {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidatePublication checks the bid bounds of a new publication.
// The ledger charges the publication fee even for publications it rejects,
// so this must run before the remote call.
func ValidatePublication(initialValue, maxValue decimal.Decimal) error {
	if maxValue.LessThan(initialValue) {
		return fmt.Errorf("%w (initial=%s, max=%s)", domain.ErrInvalidRange, initialValue, maxValue)
	}
	return nil
}

// IsOwn compares an address with the acting address, ignoring letter case.
func IsOwn(address, actualAddress domain.Address) bool {
	return address.Equal(actualAddress)
}

// CanOffer reports whether actor may place an offer on item. An actor cannot
// bid on their own item or out-bid themselves.
func CanOffer(item domain.Item, actor domain.Address) bool {
	return item.State <= domain.StateOffered &&
		!item.Owner.Equal(actor) &&
		!item.OfferAddress.Equal(actor)
}

// CanClaim reports whether actor may claim the funds of item. The ledger
// enforces the same rule; this is the client-side precondition.
func CanClaim(item domain.Item, actor domain.Address) bool {
	return item.State >= domain.StateFinished && IsOwn(item.Owner, actor)
}

// Claimable returns the predicate selecting items actor owns whose bidding
// has finished.
func Claimable(actor domain.Address) func(domain.Item) bool {
	return func(item domain.Item) bool {
		return CanClaim(item, actor)
	}
}

// FinishDue reports whether the finish date of an unfinished item has
// elapsed at now. The ledger performs the transition; this only predicts it.
func FinishDue(item domain.Item, now time.Time) bool {
	return item.State < domain.StateFinished && item.FinishDate > 0 && !now.Before(time.Unix(item.FinishDate, 0))
}

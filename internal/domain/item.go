package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ItemID is the ledger-assigned item number. Ids start at 1, are assigned
// sequentially and are never reused.
type ItemID int64

// UnmarshalJSON accepts both JSON numbers and decimal strings, since ledger
// event payloads encode unsigned integers as strings.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 {
		return fmt.Errorf("empty item id")
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse item id %q: %w", data, err)
	}
	*id = ItemID(v)
	return nil
}

// State is the item lifecycle state. States are ordered and an item's state
// never decreases.
type State int

const (
	StatePublished State = iota
	StateOffered
	StateFinished
	StatePaid
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePublished:
		return "PUBLISHED"
	case StateOffered:
		return "OFFERED"
	case StateFinished:
		return "FINISHED"
	case StatePaid:
		return "PAID"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	return s >= StatePublished && s <= StatePaid
}

// UnmarshalJSON accepts numeric states encoded either as numbers or strings.
func (s *State) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("parse state %q: %w", data, err)
	}
	*s = State(v)
	return nil
}

// Item mirrors a ledger item record. It is read-only from this module's
// perspective: the ledger is the source of truth.
type Item struct {
	ID                ItemID          `json:"itemId"`
	Owner             Address         `json:"owner"`
	OfferAddress      Address         `json:"offerAddress"` // meaningful once State >= StateOffered
	State             State           `json:"state"`
	InitialValue      decimal.Decimal `json:"initialValue"`
	MaxValue          decimal.Decimal `json:"maxValue"`
	CurrentOfferValue decimal.Decimal `json:"currentOfferValue"`
	FinishDate        int64           `json:"finishDate"` // unix seconds
	ContentHash       string          `json:"contentHash"`
}

// CacheEntry is one element of the reactive item view.
type CacheEntry struct {
	Content   *ContentRecord // nil while content is pending
	Item      Item
	Transient bool // "just changed" hint, reverts after a fixed delay
}

// Pending reports whether the entry's content is not resolved yet.
func (e CacheEntry) Pending() bool {
	return e.Content == nil
}

// ItemIDString renders an id the way the ledger encodes it in payloads.
func ItemIDString(id ItemID) string {
	return strconv.FormatInt(int64(id), 10)
}

var _ json.Unmarshaler = (*ItemID)(nil)

package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// EventName identifies a ledger event kind.
type EventName string

// Ledger event names.
const (
	EventPublishedItem        EventName = "PublishedItem"
	EventValueChanged         EventName = "ValueChanged"
	EventItemSold             EventName = "ItemSold"
	EventItemPaid             EventName = "ItemPaid"
	EventOwnershipTransferred EventName = "OwnershipTransferred"
	EventPublicationCost      EventName = "PublicationCost"
)

// EventNames lists every event the ledger emits.
var EventNames = []EventName{
	EventPublishedItem,
	EventValueChanged,
	EventItemSold,
	EventItemPaid,
	EventOwnershipTransferred,
	EventPublicationCost,
}

// Event is the closed set of ledger event payloads. Only types in this
// package implement it.
type Event interface {
	EventName() EventName
	isEvent()
}

// ItemEvent is implemented by events that refer to a single item.
type ItemEvent interface {
	Event
	Item() ItemID
}

// PublishedItem is emitted when a new item is created.
type PublishedItem struct {
	ItemID ItemID `json:"itemId"`
}

// ValueChanged is emitted when an item's offer or state changes.
type ValueChanged struct {
	ItemID ItemID `json:"itemId"`
}

// ItemSold is emitted when an item's bidding finishes with a buyer.
type ItemSold struct {
	ItemID ItemID `json:"itemId"`
}

// ItemPaid is emitted when the owner claims the funds of a finished item.
type ItemPaid struct {
	ItemID ItemID `json:"itemId"`
}

// OwnershipTransferred is emitted when the ledger contract owner changes.
type OwnershipTransferred struct {
	PreviousOwner Address `json:"previousOwner"`
	NewOwner      Address `json:"newOwner"`
}

// PublicationCost is emitted when the publication fee changes.
type PublicationCost struct {
	Cost decimal.Decimal `json:"publicationCost"`
}

func (PublishedItem) EventName() EventName        { return EventPublishedItem }
func (ValueChanged) EventName() EventName         { return EventValueChanged }
func (ItemSold) EventName() EventName             { return EventItemSold }
func (ItemPaid) EventName() EventName             { return EventItemPaid }
func (OwnershipTransferred) EventName() EventName { return EventOwnershipTransferred }
func (PublicationCost) EventName() EventName      { return EventPublicationCost }

func (PublishedItem) isEvent()        {}
func (ValueChanged) isEvent()         {}
func (ItemSold) isEvent()             {}
func (ItemPaid) isEvent()             {}
func (OwnershipTransferred) isEvent() {}
func (PublicationCost) isEvent()      {}

func (e PublishedItem) Item() ItemID { return e.ItemID }
func (e ValueChanged) Item() ItemID  { return e.ItemID }
func (e ItemSold) Item() ItemID      { return e.ItemID }
func (e ItemPaid) Item() ItemID      { return e.ItemID }

// DecodeEvent builds the typed payload for a named event.
// Unknown names and malformed payloads are errors.
func DecodeEvent(name string, payload json.RawMessage) (Event, error) {
	var ev Event
	switch EventName(name) {
	case EventPublishedItem:
		var e PublishedItem
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = e
	case EventValueChanged:
		var e ValueChanged
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = e
	case EventItemSold:
		var e ItemSold
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = e
	case EventItemPaid:
		var e ItemPaid
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = e
	case EventOwnershipTransferred:
		var e OwnershipTransferred
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = e
	case EventPublicationCost:
		var e PublicationCost
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = e
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
	return ev, nil
}

// JournalRecord is an observed ledger event as persisted by an event journal.
type JournalRecord struct {
	Name       EventName
	ItemID     ItemID // 0 when the event does not refer to an item
	Payload    json.RawMessage
	ObservedAt int64 // unix ms
}

// NewJournalRecord captures ev for persistence.
func NewJournalRecord(ev Event, observedAt int64) (*JournalRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.EventName(), err)
	}
	rec := &JournalRecord{
		Name:       ev.EventName(),
		Payload:    payload,
		ObservedAt: observedAt,
	}
	if ie, ok := ev.(ItemEvent); ok {
		rec.ItemID = ie.Item()
	}
	return rec, nil
}

package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Event
	}{
		{"PublishedItem", `{"itemId":"7"}`, PublishedItem{ItemID: 7}},
		{"ValueChanged", `{"itemId":3}`, ValueChanged{ItemID: 3}},
		{"ItemSold", `{"itemId":"12"}`, ItemSold{ItemID: 12}},
		{"ItemPaid", `{"itemId":"1"}`, ItemPaid{ItemID: 1}},
		{
			"OwnershipTransferred",
			`{"previousOwner":"0xaa","newOwner":"0xbb"}`,
			OwnershipTransferred{PreviousOwner: "0xaa", NewOwner: "0xbb"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent(tt.name, json.RawMessage(tt.payload))
			if err != nil {
				t.Fatalf("DecodeEvent: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
			if got.EventName() != EventName(tt.name) {
				t.Errorf("EventName: got %s", got.EventName())
			}
		})
	}
}

func TestDecodeEvent_PublicationCost(t *testing.T) {
	got, err := DecodeEvent("PublicationCost", json.RawMessage(`{"publicationCost":"250"}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	pc, ok := got.(PublicationCost)
	if !ok {
		t.Fatalf("expected PublicationCost, got %T", got)
	}
	if !pc.Cost.Equal(decimal.NewFromInt(250)) {
		t.Errorf("cost: got %s", pc.Cost)
	}
}

func TestDecodeEvent_Errors(t *testing.T) {
	if _, err := DecodeEvent("Transfer", json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for unknown event")
	}
	if _, err := DecodeEvent("PublishedItem", json.RawMessage(`{"itemId":"x"}`)); err == nil {
		t.Error("expected error for malformed item id")
	}
	if _, err := DecodeEvent("ValueChanged", json.RawMessage(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestNewJournalRecord(t *testing.T) {
	rec, err := NewJournalRecord(ItemSold{ItemID: 9}, 1234)
	if err != nil {
		t.Fatalf("NewJournalRecord: %v", err)
	}
	if rec.Name != EventItemSold || rec.ItemID != 9 || rec.ObservedAt != 1234 {
		t.Errorf("unexpected record: %+v", rec)
	}

	rec, err = NewJournalRecord(PublicationCost{Cost: decimal.NewFromInt(5)}, 1)
	if err != nil {
		t.Fatalf("NewJournalRecord: %v", err)
	}
	if rec.ItemID != 0 {
		t.Errorf("fee event should carry no item id, got %d", rec.ItemID)
	}
	if string(rec.Payload) != `{"publicationCost":"5"}` {
		t.Errorf("payload: got %s", rec.Payload)
	}
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("boom")

	read := NewReadFailure("getItem(3)", base)
	if !IsReadFailure(read) || IsWriteFailure(read) {
		t.Error("read failure misclassified")
	}
	if !errors.Is(read, base) {
		t.Error("read failure should unwrap to cause")
	}

	wrapped := errors.Join(errors.New("context"), NewWriteFailure("offerItem", base))
	if !IsWriteFailure(wrapped) {
		t.Error("wrapped write failure not detected")
	}

	herr := &HandlerError{Event: EventValueChanged, Index: 1, Err: base}
	if !errors.Is(herr, base) {
		t.Error("handler error should unwrap to cause")
	}

	var got []error
	sink := ErrorSink(func(err error) { got = append(got, err) })
	sink.Report(nil)
	sink.Report(read)
	if len(got) != 1 {
		t.Errorf("expected one reported error, got %d", len(got))
	}
	var nilSink ErrorSink
	nilSink.Report(read)
}

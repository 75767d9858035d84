package cache

import (
	"testing"

	"market-sync/internal/domain"
)

func TestCompactAddress(t *testing.T) {
	tests := []struct {
		in   domain.Address
		want string
	}{
		{"0x1234567890abcdef1234567890abcdef12345678", "0x1234..5678"},
		{"", ""},
		{"0xabc", "0xabc"},
	}

	for _, tt := range tests {
		if got := CompactAddress(tt.in); got != tt.want {
			t.Errorf("CompactAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEndDate(t *testing.T) {
	item := domain.Item{FinishDate: 1700000000}
	if got, want := EndDate(item), "2023-11-14T22:13:20.000Z"; got != want {
		t.Errorf("EndDate = %q, want %q", got, want)
	}
}

func TestViews_UseActualAddress(t *testing.T) {
	c := New(Options{ActualAddress: "0xAbC0000000000000000000000000000000000001"})

	own := domain.Item{Owner: "0xabc0000000000000000000000000000000000001", State: domain.StateFinished}
	if !c.IsOwn(own.Owner) {
		t.Error("expected case-insensitive ownership match")
	}
	if !c.CanClaim(own) {
		t.Error("expected owner to claim a finished item")
	}
	if c.CanOffer(own) {
		t.Error("owner must not offer on own item")
	}

	other := domain.Item{Owner: "0x00000000000000000000000000000000000000b2", State: domain.StatePublished}
	if !c.CanOffer(other) {
		t.Error("expected offer allowed on foreign published item")
	}

	c.SetActualAddress("0x00000000000000000000000000000000000000b2")
	if c.CanOffer(other) {
		t.Error("expected offer refused after switching to the owner address")
	}
}

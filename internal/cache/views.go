package cache

import (
	"time"

	"market-sync/internal/domain"
	"market-sync/internal/lifecycle"
)

// IsOwn reports whether address is the acting address.
func (c *Cache) IsOwn(address domain.Address) bool {
	return lifecycle.IsOwn(address, c.ActualAddress())
}

// CanOffer reports whether the acting address may bid on item.
func (c *Cache) CanOffer(item domain.Item) bool {
	return lifecycle.CanOffer(item, c.ActualAddress())
}

// CanClaim reports whether the acting address may claim item.
func (c *Cache) CanClaim(item domain.Item) bool {
	return lifecycle.CanClaim(item, c.ActualAddress())
}

// CompactAddress shortens an address for display: the first six characters,
// "..", then the last four. Empty input yields "".
func CompactAddress(address domain.Address) string {
	s := string(address)
	if s == "" {
		return ""
	}
	if len(s) <= 10 {
		return s
	}
	return s[:6] + ".." + s[len(s)-4:]
}

// EndDate formats the finish date of item as an ISO-8601 UTC timestamp.
func EndDate(item domain.Item) string {
	return time.Unix(item.FinishDate, 0).UTC().Format("2006-01-02T15:04:05.000Z")
}

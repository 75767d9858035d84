package ledger

import (
	"context"

	"market-sync/internal/domain"
)

// IdentityResolver resolves the acting address of a write at call time.
type IdentityResolver interface {
	ActiveAddress(ctx context.Context) (domain.Address, error)
}

// IdentityFunc adapts a function to IdentityResolver.
type IdentityFunc func(ctx context.Context) (domain.Address, error)

// ActiveAddress calls f.
func (f IdentityFunc) ActiveAddress(ctx context.Context) (domain.Address, error) {
	return f(ctx)
}

// StaticIdentity always resolves to the same address.
type StaticIdentity domain.Address

// ActiveAddress returns the fixed address, or ErrNoActiveAddress when empty.
func (s StaticIdentity) ActiveAddress(_ context.Context) (domain.Address, error) {
	if s == "" {
		return "", domain.ErrNoActiveAddress
	}
	return domain.Address(s), nil
}

package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a ledger account address in hex form. Comparison is
// case-insensitive; the value keeps whatever casing it was received with.
type Address string

// ParseAddress validates a hex address and returns it in checksummed form.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return Address(common.HexToAddress(s).Hex()), nil
}

// Equal compares two addresses canonically, independent of letter case.
func (a Address) Equal(other Address) bool {
	return strings.EqualFold(string(a), string(other))
}

// IsZero reports whether the address is empty or the all-zero address.
func (a Address) IsZero() bool {
	if a == "" {
		return true
	}
	if !common.IsHexAddress(string(a)) {
		return false
	}
	return common.HexToAddress(string(a)) == (common.Address{})
}

// Checksum returns the checksummed representation, or the raw value when it
// is not a valid hex address.
func (a Address) Checksum() string {
	if !common.IsHexAddress(string(a)) {
		return string(a)
	}
	return common.HexToAddress(string(a)).Hex()
}

func (a Address) String() string {
	return string(a)
}

package utils

import (
	"fmt"
	"strconv"

	"github.com/mr-tron/base58"
)

// ParseAmount parses a positive integer amount string and enforces an upper
// bound. Amounts travel as strings so callers in other runtimes never lose
// precision to floating point.
func ParseAmount(s string, max uint64) (uint64, error) {
	amount, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount must be a positive integer: %q", s)
	}
	if amount == 0 {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	if amount > max {
		return 0, fmt.Errorf("amount %d exceeds the maximum of %d", amount, max)
	}
	return amount, nil
}

// IsValidAddress reports whether s is a well-formed base58 32-byte public key.
// Cheap structural check, run before anything that costs a network call.
func IsValidAddress(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}

// IsValidTransactionSignature reports whether s is a well-formed base58
// 64-byte transaction signature.
func IsValidTransactionSignature(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 64
}

package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the mint/burn sentinel account. Address identity is
// case-insensitive everywhere in this service, so the constant is lowercase
// like every other normalized address.
var ZeroAddress = strings.ToLower(common.Address{}.Hex())

// ValidAddress reports whether s is a well-formed EVM address.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress lowercases an address so it can be compared or used as a
// map key. Checksummed and lowercase forms of the same address collapse.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeAddresses normalizes and dedups a slice of addresses, preserving
// first-seen order.
func NormalizeAddresses(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, a := range in {
		a = NormalizeAddress(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

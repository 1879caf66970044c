package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/sealmail/internal/cryptox"
)

// Address identifies an account or a ledger instance: "0x" followed by
// 40 lowercase hex digits.
type Address string

// ZeroAddress is what the directory returns for unknown identities.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// IsZero reports whether a is empty or the zero address.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

func (a Address) String() string { return string(a) }

// ParseAddress validates and lowercases s.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return "", fmt.Errorf("invalid address %q", s)
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return Address(s), nil
}

// AddressFromPublicKey derives the account address owned by pub.
func AddressFromPublicKey(pub cryptox.PublicKey) Address {
	sum := sha256.Sum256(pub[:])
	return Address("0x" + hex.EncodeToString(sum[:20]))
}

// Role is the capacity in which an address participates in a message.
type Role string

const (
	RoleFrom Role = "from"
	RoleTo   Role = "to"
	RoleCc   Role = "cc"
)

// ParseRole accepts "from", "to" or "cc".
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(s)); r {
	case RoleFrom, RoleTo, RoleCc:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

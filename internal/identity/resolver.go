// Package identity maps human-readable handles to account addresses and
// public keys, and back.
package identity

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
)

// Resolver is the identity directory as seen by the mail client.
//
// Unknown handles yield a *common.InvalidRecipientError. ReverseResolve
// returns common.ErrorNotFound for addresses without a registered handle.
type Resolver interface {
	ResolveAddress(ctx context.Context, handle string) (contract.Address, error)
	ResolvePublicKey(ctx context.Context, handle string) (cryptox.PublicKey, error)
	ReverseResolve(ctx context.Context, addr contract.Address) (string, error)
}

// Normalize strips surrounding blanks and a leading "@".
func Normalize(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// Display renders a handle the way the client prints it.
func Display(handle string) string {
	return "@" + Normalize(handle)
}

package models

import "time"

// User is a registered account. Address is derived from PublicKey and is
// the identity every ledger operation runs as.
type User struct {
	Address   string
	Handle    string
	PublicKey []byte
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
}

// RefreshToken is an opaque single-use token that lets Address obtain a new
// access token until ExpiresAt.
type RefreshToken struct {
	Token     string
	Address   string
	ExpiresAt time.Time
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

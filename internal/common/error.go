// Package common defines shared constants, helpers and sentinel errors used
// across the client, server and migrator. Callers match errors with errors.Is
// and the typed errors with errors.As.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")

	// Ledger errors.
	ErrInvalidRecipient    = errors.New("invalid recipient")
	ErrDuplicateRecipient  = errors.New("duplicate recipient")
	ErrUnsupportedBySchema = errors.New("not supported by ledger schema")
	ErrInvalidParams       = errors.New("invalid params")

	// Content errors.
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrSizeMismatch      = errors.New("size mismatch")
	ErrChunkUploadFailed = errors.New("chunk upload failed")

	// Auth errors.
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// InvalidRecipientError reports a recipient that cannot receive mail: an
// unknown handle, a zero address or a malformed public key.
type InvalidRecipientError struct {
	Identity string
}

func (e *InvalidRecipientError) Error() string {
	return fmt.Sprintf("invalid recipient: %s", e.Identity)
}

func (e *InvalidRecipientError) Unwrap() error { return ErrInvalidRecipient }

// DuplicateRecipientError is returned when an address already holds the role
// on a message.
type DuplicateRecipientError struct {
	Address string
	Role    string
}

func (e *DuplicateRecipientError) Error() string {
	return fmt.Sprintf("already in email (%s)", e.Role)
}

func (e *DuplicateRecipientError) Unwrap() error { return ErrDuplicateRecipient }

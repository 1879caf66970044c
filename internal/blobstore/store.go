// Package blobstore is the content-addressed storage boundary used for
// sealed message bodies and attachment chunks. Blobs are opaque ciphertext;
// their id is the hex SHA-256 of the bytes.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store puts and gets immutable blobs. Get returns common.ErrorNotFound for
// unknown ids.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
}

// ContentID returns the id a blob is stored under.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package blobstore

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/netx"
)

// Presigner mints short-lived object-storage URLs for a blob id. The ledger
// server implements it on top of S3; the client reaches it over gRPC.
type Presigner interface {
	PresignPut(ctx context.Context, id string) (string, error)
	PresignGet(ctx context.Context, id string) (string, error)
}

// PresignedStore stores blobs in S3-compatible storage through presigned
// URLs, so the client never holds storage credentials.
type PresignedStore struct {
	presigner Presigner
}

func NewPresignedStore(p Presigner) *PresignedStore {
	return &PresignedStore{presigner: p}
}

func (s *PresignedStore) Put(ctx context.Context, data []byte) (string, error) {
	id := ContentID(data)

	url, err := s.presigner.PresignPut(ctx, id)
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	if err := netx.UploadToPresignedURL(ctx, url, data); err != nil {
		return "", err
	}
	return id, nil
}

// Get downloads the blob and checks it against id. Bytes altered in storage
// or in transit are reported as common.ErrDecryptionFailed.
func (s *PresignedStore) Get(ctx context.Context, id string) ([]byte, error) {
	url, err := s.presigner.PresignGet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("presign get: %w", err)
	}

	data, err := netx.DownloadFromPresignedURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if ContentID(data) != id {
		return nil, fmt.Errorf("%w: blob %s: content hash mismatch", common.ErrDecryptionFailed, id)
	}
	return data, nil
}

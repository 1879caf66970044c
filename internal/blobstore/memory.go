package blobstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/dmitrijs2005/sealmail/internal/common"
)

// MemoryStore keeps blobs in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := ContentID(data)

	s.mu.Lock()
	s.blobs[id] = bytes.Clone(data)
	s.mu.Unlock()

	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	b, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, common.ErrorNotFound
	}
	return bytes.Clone(b), nil
}

// Delete drops a blob. Used by tests to simulate storage loss.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

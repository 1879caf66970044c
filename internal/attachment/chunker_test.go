package attachment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/sealmail/internal/blobstore"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the Put calls whose sequence numbers are listed in failOn.
type flakyStore struct {
	*blobstore.MemoryStore
	mu     sync.Mutex
	puts   int
	failOn map[int]bool
}

func (s *flakyStore) Put(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	n := s.puts
	s.puts++
	s.mu.Unlock()

	if s.failOn[n] {
		return "", errors.New("connection reset")
	}
	return s.MemoryStore.Put(ctx, data)
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestStoreRetrieve_RoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		chunkSize  int
		wantChunks int
	}{
		{name: "empty", size: 0, chunkSize: 16, wantChunks: 0},
		{name: "smaller than chunk", size: 10, chunkSize: 16, wantChunks: 1},
		{name: "exact multiple", size: 64, chunkSize: 16, wantChunks: 4},
		{name: "ragged tail", size: 70, chunkSize: 16, wantChunks: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			c := NewChunker(store, 3)
			key := cryptox.NewContentKey()
			data := payload(tt.size)
			info := FileInfo{Name: "a.bin", Type: "application/octet-stream", LastModified: 1700000000}

			f, err := c.Store(context.Background(), bytes.NewReader(data), info, tt.chunkSize, key)
			require.NoError(t, err)
			assert.Len(t, f.Chunks, tt.wantChunks)
			assert.Equal(t, int64(tt.size), f.Size)
			assert.Equal(t, "a.bin", f.Name)
			for i, ch := range f.Chunks {
				assert.Equal(t, i, ch.Position)
			}

			got, err := c.Retrieve(context.Background(), f, key)
			require.NoError(t, err)
			assert.Equal(t, len(data), len(got))
			assert.True(t, bytes.Equal(data, got))
		})
	}
}

func TestRetrieve_OutOfOrderChunks(t *testing.T) {
	store := blobstore.NewMemoryStore()
	c := NewChunker(store, 2)
	key := cryptox.NewContentKey()
	data := payload(50)

	f, err := c.Store(context.Background(), bytes.NewReader(data), FileInfo{Name: "x"}, 8, key)
	require.NoError(t, err)

	for i, j := 0, len(f.Chunks)-1; i < j; i, j = i+1, j-1 {
		f.Chunks[i], f.Chunks[j] = f.Chunks[j], f.Chunks[i]
	}

	got, err := c.Retrieve(context.Background(), f, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRetrieve_Failures(t *testing.T) {
	store := blobstore.NewMemoryStore()
	c := NewChunker(store, 2)
	key := cryptox.NewContentKey()
	data := payload(40)

	f, err := c.Store(context.Background(), bytes.NewReader(data), FileInfo{Name: "x"}, 16, key)
	require.NoError(t, err)

	t.Run("size mismatch", func(t *testing.T) {
		bad := *f
		bad.Size = 41
		_, err := c.Retrieve(context.Background(), &bad, key)
		assert.ErrorIs(t, err, common.ErrSizeMismatch)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := c.Retrieve(context.Background(), f, cryptox.NewContentKey())
		assert.ErrorIs(t, err, common.ErrDecryptionFailed)
	})

	t.Run("missing chunk", func(t *testing.T) {
		store.Delete(f.Chunks[1].ID)
		_, err := c.Retrieve(context.Background(), f, key)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestStore_FailureAndResume(t *testing.T) {
	mem := blobstore.NewMemoryStore()
	flaky := &flakyStore{MemoryStore: mem, failOn: map[int]bool{2: true}}
	key := cryptox.NewContentKey()
	data := payload(80)
	info := FileInfo{Name: "big.bin", Size: 80}

	_, err := NewChunker(flaky, 1).Store(context.Background(), bytes.NewReader(data), info, 16, key)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrChunkUploadFailed)

	var cue *ChunkUploadError
	require.True(t, errors.As(err, &cue))
	assert.Equal(t, 2, cue.Index)
	require.Len(t, cue.Partial.Chunks, 2)
	assert.Equal(t, 0, cue.Partial.Chunks[0].Position)
	assert.Equal(t, 1, cue.Partial.Chunks[1].Position)

	c := NewChunker(mem, 2)
	f, err := c.StoreFrom(context.Background(), bytes.NewReader(data), info, 16, key, cue.Partial)
	require.NoError(t, err)
	require.Len(t, f.Chunks, 5)
	assert.Equal(t, int64(80), f.Size)

	got, err := c.Retrieve(context.Background(), f, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStore_InvalidChunkSize(t *testing.T) {
	c := NewChunker(blobstore.NewMemoryStore(), 1)
	_, err := c.Store(context.Background(), bytes.NewReader(nil), FileInfo{}, 0, cryptox.NewContentKey())
	assert.Error(t, err)
}

func TestStoreFrom_ShortReader(t *testing.T) {
	c := NewChunker(blobstore.NewMemoryStore(), 1)
	partial := &StoredFile{Chunks: []Chunk{{ID: "a", Position: 0}, {ID: "b", Position: 1}}}
	_, err := c.StoreFrom(context.Background(), bytes.NewReader(payload(10)), FileInfo{}, 16, cryptox.NewContentKey(), partial)
	assert.Error(t, err)
}

func TestStore_EmptyFileManifest(t *testing.T) {
	c := NewChunker(blobstore.NewMemoryStore(), 2)

	f, err := c.Store(context.Background(), bytes.NewReader(nil), FileInfo{Name: "e"}, 16, cryptox.NewContentKey())
	require.NoError(t, err)

	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"chunks":[]`)
	assert.NotContains(t, string(raw), `null`)
}

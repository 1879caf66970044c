// Package attachment splits files into fixed-size chunks, encrypts each
// chunk under the attachment's content key and stores it in a blob store.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dmitrijs2005/sealmail/internal/blobstore"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the plaintext size of every chunk but the last.
const DefaultChunkSize = 5 << 20

// FileInfo describes the plaintext file.
type FileInfo struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	LastModified int64  `json:"lastModified"`
}

// Chunk points at one encrypted chunk. Position is the chunk's index in the
// plaintext.
type Chunk struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// StoredFile is everything needed, besides the key, to rebuild a file.
type StoredFile struct {
	FileInfo
	Chunks []Chunk `json:"chunks"`
}

// ChunkUploadError reports the lowest chunk index that failed to upload.
// Partial holds the contiguous prefix of chunks that did succeed and can be
// passed to StoreFrom to resume.
type ChunkUploadError struct {
	Index   int
	Partial *StoredFile
	Err     error
}

func (e *ChunkUploadError) Error() string {
	return fmt.Sprintf("chunk %d upload failed: %v", e.Index, e.Err)
}

func (e *ChunkUploadError) Unwrap() []error {
	return []error{common.ErrChunkUploadFailed, e.Err}
}

// Chunker stores and retrieves chunked attachments.
type Chunker struct {
	store    blobstore.Store
	parallel int
}

func NewChunker(store blobstore.Store, parallel int) *Chunker {
	if parallel <= 0 {
		parallel = 4
	}
	return &Chunker{store: store, parallel: parallel}
}

// Store reads r to EOF in chunks of at most chunkSize bytes and uploads each
// chunk encrypted under key.
func (c *Chunker) Store(ctx context.Context, r io.Reader, info FileInfo, chunkSize int, key []byte) (*StoredFile, error) {
	return c.StoreFrom(ctx, r, info, chunkSize, key, nil)
}

// StoreFrom resumes an upload. The chunks of partial are kept and the
// matching bytes of r are skipped.
func (c *Chunker) StoreFrom(ctx context.Context, r io.Reader, info FileInfo, chunkSize int, key []byte, partial *StoredFile) (*StoredFile, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}

	done := []Chunk{}
	if partial != nil {
		done = append(done, partial.Chunks...)
		skip := int64(len(done)) * int64(chunkSize)
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("skip stored chunks: %w", err)
		}
	}

	var (
		mu       sync.Mutex
		chunks   = make(map[int]Chunk)
		failed   = -1
		firstErr error
		total    int64 = int64(len(done)) * int64(chunkSize)
	)

	record := func(pos int, id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if failed == -1 || pos < failed {
				failed, firstErr = pos, err
			}
			return
		}
		chunks[pos] = Chunk{ID: id, Position: pos}
	}

	stopped := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failed != -1
	}

	var g errgroup.Group
	g.SetLimit(c.parallel)

	pos := len(done)
	for !stopped() {
		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			total += int64(n)
			plain := buf[:n]
			p := pos
			g.Go(func() error {
				id, err := c.putChunk(ctx, plain, key)
				record(p, id, err)
				return nil
			})
			pos++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			_ = g.Wait()
			return nil, fmt.Errorf("read chunk %d: %w", pos, err)
		}
	}
	_ = g.Wait()

	if failed != -1 {
		prefix := append([]Chunk{}, done...)
		for i := len(done); i < failed; i++ {
			prefix = append(prefix, chunks[i])
		}
		return nil, &ChunkUploadError{
			Index:   failed,
			Partial: &StoredFile{FileInfo: info, Chunks: prefix},
			Err:     firstErr,
		}
	}

	out := &StoredFile{FileInfo: info, Chunks: done}
	for i := len(done); i < pos; i++ {
		out.Chunks = append(out.Chunks, chunks[i])
	}
	out.Size = total
	return out, nil
}

func (c *Chunker) putChunk(ctx context.Context, plain, key []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	blob, err := cryptox.SealGCM(key, plain)
	if err != nil {
		return "", err
	}
	return c.store.Put(ctx, blob)
}

// Retrieve downloads, decrypts and reassembles f in position order.
func (c *Chunker) Retrieve(ctx context.Context, f *StoredFile, key []byte) ([]byte, error) {
	chunks := append([]Chunk(nil), f.Chunks...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })

	parts := make([][]byte, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)

	for i, ch := range chunks {
		g.Go(func() error {
			blob, err := c.store.Get(gctx, ch.ID)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", ch.Position, err)
			}
			plain, err := cryptox.OpenGCM(key, blob)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", ch.Position, err)
			}
			parts[i] = plain
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var n int64
	for _, p := range parts {
		n += int64(len(p))
	}
	if n != f.Size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", common.ErrSizeMismatch, n, f.Size)
	}

	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// Package envelope seals a plaintext once per recipient public key.
//
// The plaintext is encrypted with a fresh AES-256-GCM content key and the
// ciphertext is put into a blob store. The content key is then wrapped for
// each recipient with X25519. An Envelope is the pair (storage id, wrapped
// key); only the holder of the matching private key can open it.
package envelope

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/sealmail/internal/blobstore"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
	"golang.org/x/sync/errgroup"
)

// Mode selects how ciphertext is shared between envelopes.
type Mode int

const (
	// ModeShared stores the ciphertext once; envelopes differ only by the
	// wrapped key.
	ModeShared Mode = iota
	// ModePerRecipient encrypts and stores the plaintext separately for
	// every recipient under its own content key.
	ModePerRecipient
)

// Envelope is one recipient's handle on a sealed message.
type Envelope struct {
	StorageID  string
	WrappedKey []byte
}

// Codec seals and opens envelopes against a blob store.
type Codec struct {
	store    blobstore.Store
	mode     Mode
	parallel int
}

type Option func(*Codec)

func WithMode(m Mode) Option {
	return func(c *Codec) { c.mode = m }
}

// WithParallelism bounds concurrent per-recipient work.
func WithParallelism(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.parallel = n
		}
	}
}

func NewCodec(store blobstore.Store, opts ...Option) *Codec {
	c := &Codec{store: store, mode: ModeShared, parallel: 8}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Seal encrypts plaintext for every key in recipients. The result is
// all-or-nothing: on error no envelope is returned.
func (c *Codec) Seal(ctx context.Context, plaintext []byte, recipients []cryptox.PublicKey) (map[cryptox.PublicKey]Envelope, error) {
	if len(recipients) == 0 {
		return nil, common.ErrInvalidRecipient
	}

	if c.mode == ModePerRecipient {
		return c.sealPerRecipient(ctx, plaintext, recipients)
	}

	key := cryptox.NewContentKey()
	defer common.WipeByteArray(key)

	return c.SealWithKey(ctx, plaintext, key, recipients)
}

// SealWithKey is Seal in shared mode with a caller-supplied content key.
func (c *Codec) SealWithKey(ctx context.Context, plaintext, key []byte, recipients []cryptox.PublicKey) (map[cryptox.PublicKey]Envelope, error) {
	if len(recipients) == 0 {
		return nil, common.ErrInvalidRecipient
	}

	blob, err := cryptox.SealGCM(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("seal content: %w", err)
	}

	storageID, err := c.store.Put(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}

	return c.fanOut(ctx, recipients, func(_ context.Context, pk cryptox.PublicKey) (Envelope, error) {
		wrapped, err := cryptox.WrapKey(pk, key)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{StorageID: storageID, WrappedKey: wrapped}, nil
	})
}

func (c *Codec) sealPerRecipient(ctx context.Context, plaintext []byte, recipients []cryptox.PublicKey) (map[cryptox.PublicKey]Envelope, error) {
	return c.fanOut(ctx, recipients, func(ctx context.Context, pk cryptox.PublicKey) (Envelope, error) {
		key := cryptox.NewContentKey()
		defer common.WipeByteArray(key)

		// wrap first so a bad key fails before anything is stored
		wrapped, err := cryptox.WrapKey(pk, key)
		if err != nil {
			return Envelope{}, err
		}

		blob, err := cryptox.SealGCM(key, plaintext)
		if err != nil {
			return Envelope{}, err
		}

		storageID, err := c.store.Put(ctx, blob)
		if err != nil {
			return Envelope{}, fmt.Errorf("store content: %w", err)
		}
		return Envelope{StorageID: storageID, WrappedKey: wrapped}, nil
	})
}

func (c *Codec) fanOut(ctx context.Context, recipients []cryptox.PublicKey,
	seal func(context.Context, cryptox.PublicKey) (Envelope, error)) (map[cryptox.PublicKey]Envelope, error) {

	out := make(map[cryptox.PublicKey]Envelope, len(recipients))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)

	seen := make(map[cryptox.PublicKey]struct{}, len(recipients))
	for _, pk := range recipients {
		if _, dup := seen[pk]; dup {
			continue
		}
		seen[pk] = struct{}{}

		g.Go(func() error {
			env, err := seal(gctx, pk)
			if err != nil {
				return err
			}
			mu.Lock()
			out[pk] = env
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Open fetches the ciphertext behind env and decrypts it with priv.
// A missing blob is common.ErrorNotFound; every cryptographic failure is
// common.ErrDecryptionFailed.
func (c *Codec) Open(ctx context.Context, env Envelope, priv cryptox.PrivateKey) ([]byte, error) {
	key, err := c.UnwrapKey(env, priv)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	blob, err := c.store.Get(ctx, env.StorageID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch content: %w", err)
	}

	return cryptox.OpenGCM(key, blob)
}

// UnwrapKey recovers the content key of env without touching storage.
func (c *Codec) UnwrapKey(env Envelope, priv cryptox.PrivateKey) ([]byte, error) {
	return cryptox.UnwrapKey(priv, env.WrappedKey)
}

package identity

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
)

type entry struct {
	addr contract.Address
	pub  cryptox.PublicKey
}

// Directory is an in-memory Resolver.
type Directory struct {
	mu       sync.RWMutex
	byHandle map[string]entry
	byAddr   map[contract.Address]string
}

func NewDirectory() *Directory {
	return &Directory{
		byHandle: make(map[string]entry),
		byAddr:   make(map[contract.Address]string),
	}
}

// Add registers handle with the address derived from pub.
func (d *Directory) Add(handle string, pub cryptox.PublicKey) contract.Address {
	handle = Normalize(handle)
	addr := contract.AddressFromPublicKey(pub)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.byHandle[handle] = entry{addr: addr, pub: pub}
	d.byAddr[addr] = handle
	return addr
}

func (d *Directory) lookup(handle string) (entry, error) {
	handle = Normalize(handle)

	d.mu.RLock()
	e, ok := d.byHandle[handle]
	d.mu.RUnlock()

	if !ok {
		return entry{}, &common.InvalidRecipientError{Identity: handle}
	}
	return e, nil
}

func (d *Directory) ResolveAddress(_ context.Context, handle string) (contract.Address, error) {
	e, err := d.lookup(handle)
	return e.addr, err
}

func (d *Directory) ResolvePublicKey(_ context.Context, handle string) (cryptox.PublicKey, error) {
	e, err := d.lookup(handle)
	return e.pub, err
}

func (d *Directory) ReverseResolve(_ context.Context, addr contract.Address) (string, error) {
	d.mu.RLock()
	h, ok := d.byAddr[addr]
	d.mu.RUnlock()

	if !ok {
		return "", common.ErrorNotFound
	}
	return h, nil
}

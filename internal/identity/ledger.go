package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
)

// Caller runs read-only contract calls. The gRPC ledger client satisfies it.
type Caller interface {
	Call(ctx context.Context, c contract.Call) (any, error)
}

// LedgerResolver resolves identities through the Identity contract.
// Successful lookups are cached for the lifetime of the resolver.
type LedgerResolver struct {
	caller Caller

	mu      sync.Mutex
	addrs   map[string]contract.Address
	keys    map[string]cryptox.PublicKey
	handles map[contract.Address]string
}

func NewLedgerResolver(caller Caller) *LedgerResolver {
	return &LedgerResolver{
		caller:  caller,
		addrs:   make(map[string]contract.Address),
		keys:    make(map[string]cryptox.PublicKey),
		handles: make(map[contract.Address]string),
	}
}

func (r *LedgerResolver) call(ctx context.Context, method string, arg string) (string, error) {
	res, err := r.caller.Call(ctx, contract.Call{
		Contract: contract.ContractIdentity,
		Method:   method,
		Params:   contract.Params{arg},
	})
	if err != nil {
		return "", err
	}
	s, ok := res.(string)
	if !ok && res != nil {
		return "", fmt.Errorf("%s returned %T", method, res)
	}
	return s, nil
}

func (r *LedgerResolver) ResolveAddress(ctx context.Context, handle string) (contract.Address, error) {
	handle = Normalize(handle)

	r.mu.Lock()
	a, ok := r.addrs[handle]
	r.mu.Unlock()
	if ok {
		return a, nil
	}

	s, err := r.call(ctx, contract.MethodIdentityToOwner, handle)
	if err != nil {
		return "", err
	}
	a = contract.Address(s)
	if a.IsZero() {
		return "", &common.InvalidRecipientError{Identity: handle}
	}

	r.mu.Lock()
	r.addrs[handle] = a
	r.handles[a] = handle
	r.mu.Unlock()

	return a, nil
}

func (r *LedgerResolver) ResolvePublicKey(ctx context.Context, handle string) (cryptox.PublicKey, error) {
	handle = Normalize(handle)

	r.mu.Lock()
	k, ok := r.keys[handle]
	r.mu.Unlock()
	if ok {
		return k, nil
	}

	s, err := r.call(ctx, contract.MethodPublicKeyByIdentity, handle)
	if err != nil {
		return cryptox.PublicKey{}, err
	}
	if s == "" {
		return cryptox.PublicKey{}, &common.InvalidRecipientError{Identity: handle}
	}
	k, err = cryptox.PublicKeyFromString(s)
	if err != nil {
		return cryptox.PublicKey{}, &common.InvalidRecipientError{Identity: handle}
	}

	r.mu.Lock()
	r.keys[handle] = k
	r.mu.Unlock()

	return k, nil
}

func (r *LedgerResolver) ReverseResolve(ctx context.Context, addr contract.Address) (string, error) {
	r.mu.Lock()
	h, ok := r.handles[addr]
	r.mu.Unlock()
	if ok {
		return h, nil
	}

	h, err := r.call(ctx, contract.MethodOwnerToIdentity, string(addr))
	if err != nil {
		return "", err
	}
	if h == "" {
		return "", common.ErrorNotFound
	}

	r.mu.Lock()
	r.handles[addr] = h
	r.mu.Unlock()

	return h, nil
}

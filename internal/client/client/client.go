package client

import (
	"context"

	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
)

// Client is the ledger API used by the mail client and the migrator.
type Client interface {
	Close() error
	Register(ctx context.Context, handle string, publicKey cryptox.PublicKey, salt, verifier []byte) (contract.Address, error)
	GetSalt(ctx context.Context, handle string) ([]byte, error)
	Login(ctx context.Context, handle string, verifier []byte) (contract.Address, error)
	Ping(ctx context.Context) error

	Ledger() contract.Address
	Call(ctx context.Context, c contract.Call) (any, error)
	Send(ctx context.Context, c contract.Call) (*contract.Receipt, error)
	Events(ctx context.Context, ledger contract.Address, name string) ([]contract.Event, error)
	Subscribe(ctx context.Context, ledger contract.Address, name string) (EventStream, error)

	PresignPut(ctx context.Context, id string) (string, error)
	PresignGet(ctx context.Context, id string) (string, error)
}

var _ Client = (*GRPCClient)(nil)

package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/sealmail/internal/server/services"
)

type runFunc func(s *GRPCServer, ctx context.Context, caller contract.Address, c contract.Call) (any, *contract.Receipt, error)

type method struct {
	write bool
	run   runFunc
}

func read(run runFunc) method  { return method{run: run} }
func write(run runFunc) method { return method{write: true, run: run} }

var methods = map[string]map[string]method{
	contract.ContractMail: {
		contract.MethodSend:                  write((*GRPCServer).mailSend),
		contract.MethodAddRecipient:          write((*GRPCServer).mailAddRecipient),
		contract.MethodMarkAsRead:            write(setFlag(ledger.FlagRead)),
		contract.MethodMarkAsImportant:       write(setFlag(ledger.FlagImportant)),
		contract.MethodDeleteMessage:         write(setFlag(ledger.FlagDeleted)),
		contract.MethodAddEmailFromMigration: write((*GRPCServer).mailAddFromMigration),
		contract.MethodDeploy:                write((*GRPCServer).mailDeploy),
		contract.MethodGetEmailByID:          read((*GRPCServer).mailGetByID),
		contract.MethodGetAllByFrom:          read(list(ledger.FolderFrom)),
		contract.MethodGetAllByTo:            read(list(ledger.FolderTo)),
		contract.MethodGetAllByCc:            read(list(ledger.FolderCc)),
		contract.MethodGetImportant:          read(list(ledger.FolderImportant)),
		contract.MethodGetDeleted:            read(list(ledger.FolderDeleted)),
		contract.MethodEmailUserMetadata:     read((*GRPCServer).mailUserMetadata),
		contract.MethodSchemaVersion:         read((*GRPCServer).mailSchemaVersion),
	},
	contract.ContractIdentity: {
		contract.MethodIdentityToOwner:     read((*GRPCServer).identityToOwner),
		contract.MethodPublicKeyByIdentity: read((*GRPCServer).publicKeyByIdentity),
		contract.MethodOwnerToIdentity:     read((*GRPCServer).ownerToIdentity),
	},
	contract.ContractStorage: {
		contract.MethodPresignPut: read((*GRPCServer).presignPut),
		contract.MethodPresignGet: read((*GRPCServer).presignGet),
	},
}

// lookup finds the handler of c. Writes must go through Send and reads
// through Call.
func lookup(c contract.Call, write bool) (method, error) {
	m, ok := methods[c.Contract][c.Method]
	if !ok {
		return method{}, status.Errorf(codes.Unimplemented, "unknown method %s.%s", c.Contract, c.Method)
	}
	if m.write != write {
		if m.write {
			return method{}, status.Errorf(codes.InvalidArgument, "%s.%s is a write, use Send", c.Contract, c.Method)
		}
		return method{}, status.Errorf(codes.InvalidArgument, "%s.%s is read-only, use Call", c.Contract, c.Method)
	}
	return m, nil
}

// send(storageId, wrappedKey)
func (s *GRPCServer) mailSend(ctx context.Context, caller contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	env, err := envelopeAt(c.Params, 0)
	if err != nil {
		return nil, nil, err
	}
	id, receipt, err := s.ledger.Send(ctx, c.Ledger, caller, env)
	return id, receipt, err
}

// addRecipientToEmail(id, address, storageId, wrappedKey[, role])
func (s *GRPCServer) mailAddRecipient(ctx context.Context, caller contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	id, err := c.Params.Int64(0)
	if err != nil {
		return nil, nil, err
	}
	address, err := c.Params.Address(1)
	if err != nil {
		return nil, nil, err
	}
	env, err := envelopeAt(c.Params, 2)
	if err != nil {
		return nil, nil, err
	}

	role := contract.RoleTo
	if len(c.Params) > 4 {
		raw, err := c.Params.Str(4)
		if err != nil {
			return nil, nil, err
		}
		if role, err = contract.ParseRole(raw); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", common.ErrInvalidParams, err)
		}
	}

	receipt, err := s.ledger.AddRecipient(ctx, c.Ledger, caller, id, address, env, role)
	return nil, receipt, err
}

// markAsRead, markAsImportant, deleteMessage: (id, value)
func setFlag(flag ledger.Flag) runFunc {
	return func(s *GRPCServer, ctx context.Context, caller contract.Address, c contract.Call) (any, *contract.Receipt, error) {
		id, err := c.Params.Int64(0)
		if err != nil {
			return nil, nil, err
		}
		value, err := c.Params.Bool(1)
		if err != nil {
			return nil, nil, err
		}
		return nil, &contract.Receipt{}, s.ledger.SetFlag(ctx, c.Ledger, caller, id, flag, value)
	}
}

func (s *GRPCServer) mailAddFromMigration(ctx context.Context, caller contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	v, err := s.ledger.SchemaVersion(ctx, c.Ledger)
	if err != nil {
		return nil, nil, err
	}
	rec, err := contract.DecodeMigration(v, c.Params)
	if err != nil {
		return nil, nil, err
	}
	receipt, err := s.ledger.AddFromMigration(ctx, c.Ledger, caller, rec)
	return nil, receipt, err
}

// deploy(address, schemaVersion). The caller becomes the owner.
func (s *GRPCServer) mailDeploy(ctx context.Context, caller contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	raw, err := c.Params.Str(0)
	if err != nil {
		return nil, nil, err
	}
	address, err := contract.ParseAddress(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrInvalidParams, err)
	}
	n, err := c.Params.Int64(1)
	if err != nil {
		return nil, nil, err
	}
	v, err := contract.ParseSchemaVersion(n)
	if err != nil {
		return nil, nil, err
	}
	if err := s.ledger.Deploy(ctx, address, caller, v); err != nil {
		return nil, nil, err
	}
	return address, &contract.Receipt{}, nil
}

func (s *GRPCServer) mailGetByID(ctx context.Context, caller contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	id, err := c.Params.Int64(0)
	if err != nil {
		return nil, nil, err
	}
	v, err := s.ledger.SchemaVersion(ctx, c.Ledger)
	if err != nil {
		return nil, nil, err
	}
	e, err := s.ledger.GetByID(ctx, c.Ledger, caller, id)
	if err != nil {
		return nil, nil, err
	}
	tuple, err := contract.EncodeEmail(v, e)
	return tuple, nil, err
}

func list(folder ledger.Folder) runFunc {
	return func(s *GRPCServer, ctx context.Context, caller contract.Address, c contract.Call) (any, *contract.Receipt, error) {
		v, err := s.ledger.SchemaVersion(ctx, c.Ledger)
		if err != nil {
			return nil, nil, err
		}
		emails, err := s.ledger.List(ctx, c.Ledger, caller, folder)
		if err != nil {
			return nil, nil, err
		}
		out := make([]any, 0, len(emails))
		for _, e := range emails {
			tuple, err := contract.EncodeEmail(v, e)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, tuple)
		}
		return out, nil, nil
	}
}

// emailUserMetadata(id, address[, role])
func (s *GRPCServer) mailUserMetadata(ctx context.Context, caller contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	id, err := c.Params.Int64(0)
	if err != nil {
		return nil, nil, err
	}
	address, err := c.Params.Address(1)
	if err != nil {
		return nil, nil, err
	}
	var role contract.Role
	if len(c.Params) > 2 {
		raw, err := c.Params.Str(2)
		if err != nil {
			return nil, nil, err
		}
		if role, err = contract.ParseRole(raw); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", common.ErrInvalidParams, err)
		}
	}

	v, err := s.ledger.SchemaVersion(ctx, c.Ledger)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.ledger.UserMetadata(ctx, c.Ledger, caller, id, address, role)
	if err != nil {
		return nil, nil, err
	}
	return contract.EncodeMetadata(v, m), nil, nil
}

func (s *GRPCServer) mailSchemaVersion(ctx context.Context, _ contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	v, err := s.ledger.SchemaVersion(ctx, c.Ledger)
	return int64(v), nil, err
}

func (s *GRPCServer) identityToOwner(ctx context.Context, _ contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	handle, err := c.Params.Str(0)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.identity.IdentityToOwner(ctx, handle)
	return a, nil, err
}

func (s *GRPCServer) publicKeyByIdentity(ctx context.Context, _ contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	handle, err := c.Params.Str(0)
	if err != nil {
		return nil, nil, err
	}
	key, err := s.identity.PublicKeyByIdentity(ctx, handle)
	return key, nil, err
}

func (s *GRPCServer) ownerToIdentity(ctx context.Context, _ contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	a, err := c.Params.Address(0)
	if err != nil {
		return nil, nil, err
	}
	handle, err := s.identity.OwnerToIdentity(ctx, a)
	return handle, nil, err
}

func (s *GRPCServer) presignPut(ctx context.Context, _ contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	id, err := c.Params.Str(0)
	if err != nil {
		return nil, nil, err
	}
	url, err := s.storage.PresignPut(ctx, id)
	return url, nil, err
}

func (s *GRPCServer) presignGet(ctx context.Context, _ contract.Address, c contract.Call) (any, *contract.Receipt, error) {
	id, err := c.Params.Str(0)
	if err != nil {
		return nil, nil, err
	}
	url, err := s.storage.PresignGet(ctx, id)
	return url, nil, err
}

func envelopeAt(p contract.Params, i int) (services.Envelope, error) {
	storageID, err := p.Str(i)
	if err != nil {
		return services.Envelope{}, err
	}
	wrapped, err := p.Bytes(i + 1)
	if err != nil {
		return services.Envelope{}, err
	}
	if storageID == "" {
		return services.Envelope{}, fmt.Errorf("%w: empty storage id", common.ErrInvalidParams)
	}
	return services.Envelope{StorageID: storageID, WrappedKey: wrapped}, nil
}

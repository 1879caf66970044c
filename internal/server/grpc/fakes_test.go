package grpc

import (
	"context"

	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/logging"
	"github.com/dmitrijs2005/sealmail/internal/server/models"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/sealmail/internal/server/services"
)

type fakeUser struct {
	refreshResp *services.TokenPair
	refreshErr  error

	regResp *models.User
	regErr  error
	regKey  []byte

	saltResp []byte
	saltErr  error

	loginResp *services.TokenPair
	loginAddr string
	loginErr  error
}

func (f *fakeUser) RefreshToken(ctx context.Context, refresh string) (*services.TokenPair, error) {
	return f.refreshResp, f.refreshErr
}
func (f *fakeUser) Register(ctx context.Context, handle string, publicKey, salt, verifier []byte) (*models.User, error) {
	f.regKey = publicKey
	return f.regResp, f.regErr
}
func (f *fakeUser) GetSalt(ctx context.Context, handle string) ([]byte, error) {
	return f.saltResp, f.saltErr
}
func (f *fakeUser) Login(ctx context.Context, handle string, verifierCandidate []byte) (*services.TokenPair, string, error) {
	return f.loginResp, f.loginAddr, f.loginErr
}

type fakeIdentity struct {
	owners map[string]contract.Address
	keys   map[string]string
}

func (f *fakeIdentity) IdentityToOwner(ctx context.Context, handle string) (contract.Address, error) {
	if a, ok := f.owners[handle]; ok {
		return a, nil
	}
	return contract.ZeroAddress, nil
}
func (f *fakeIdentity) PublicKeyByIdentity(ctx context.Context, handle string) (string, error) {
	return f.keys[handle], nil
}
func (f *fakeIdentity) OwnerToIdentity(ctx context.Context, address contract.Address) (string, error) {
	for h, a := range f.owners {
		if a == address {
			return h, nil
		}
	}
	return "", nil
}

type fakeStorage struct {
	err error
}

func (f *fakeStorage) PresignPut(ctx context.Context, id string) (string, error) {
	return "http://s3/put/" + id, f.err
}
func (f *fakeStorage) PresignGet(ctx context.Context, id string) (string, error) {
	return "http://s3/get/" + id, f.err
}

type recipientCall struct {
	id      int64
	address contract.Address
	env     services.Envelope
	role    contract.Role
}

type flagCall struct {
	id    int64
	flag  ledger.Flag
	value bool
}

// fakeLedger records writes and serves canned reads.
type fakeLedger struct {
	version contract.SchemaVersion
	err     error

	sent       []services.Envelope
	recipients []recipientCall
	flags      []flagCall
	migrated   []*contract.MigrationRecord
	deployed   []contract.Address
	callers    []contract.Address

	email    contract.Email
	listed   []contract.Email
	folder   ledger.Folder
	metadata contract.Metadata
	metaRole contract.Role
	events   []contract.Event
}

func (f *fakeLedger) Resolve(l contract.Address) contract.Address {
	if l == "" {
		return "0x00000000000000000000000000000000000000e1"
	}
	return l
}
func (f *fakeLedger) SchemaVersion(ctx context.Context, l contract.Address) (contract.SchemaVersion, error) {
	return f.version, nil
}
func (f *fakeLedger) Deploy(ctx context.Context, address, owner contract.Address, v contract.SchemaVersion) error {
	f.deployed = append(f.deployed, address)
	f.callers = append(f.callers, owner)
	return f.err
}
func (f *fakeLedger) Send(ctx context.Context, l, caller contract.Address, env services.Envelope) (int64, *contract.Receipt, error) {
	if f.err != nil {
		return 0, nil, f.err
	}
	f.sent = append(f.sent, env)
	f.callers = append(f.callers, caller)
	id := int64(len(f.sent))
	return id, &contract.Receipt{Events: []contract.Event{{
		Name: contract.EventEmailCreated,
		Args: map[string]any{"id": id, "address": string(caller)},
	}}}, nil
}
func (f *fakeLedger) AddRecipient(ctx context.Context, l, caller contract.Address, id int64, address contract.Address, env services.Envelope, role contract.Role) (*contract.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.recipients = append(f.recipients, recipientCall{id, address, env, role})
	return &contract.Receipt{Events: []contract.Event{{Name: contract.EventRecipientAdded, Args: map[string]any{"id": id}}}}, nil
}
func (f *fakeLedger) SetFlag(ctx context.Context, l, caller contract.Address, id int64, flag ledger.Flag, value bool) error {
	f.flags = append(f.flags, flagCall{id, flag, value})
	return f.err
}
func (f *fakeLedger) GetByID(ctx context.Context, l, caller contract.Address, id int64) (contract.Email, error) {
	return f.email, f.err
}
func (f *fakeLedger) List(ctx context.Context, l, caller contract.Address, folder ledger.Folder) ([]contract.Email, error) {
	f.folder = folder
	return f.listed, f.err
}
func (f *fakeLedger) UserMetadata(ctx context.Context, l, caller contract.Address, id int64, address contract.Address, role contract.Role) (contract.Metadata, error) {
	f.metaRole = role
	return f.metadata, f.err
}
func (f *fakeLedger) AddFromMigration(ctx context.Context, l, caller contract.Address, rec *contract.MigrationRecord) (*contract.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.migrated = append(f.migrated, rec)
	return &contract.Receipt{}, nil
}
func (f *fakeLedger) Events(ctx context.Context, l contract.Address, name string) ([]contract.Event, error) {
	return f.events, f.err
}

func newServer(u userSvc, l ledgerSvc) *GRPCServer {
	return &GRPCServer{
		address:   "127.0.0.1:0",
		users:     u,
		identity:  &fakeIdentity{},
		storage:   &fakeStorage{},
		ledger:    l,
		logger:    logging.Nop{},
		jwtSecret: []byte("k"),
	}
}

const caller contract.Address = "0x00000000000000000000000000000000000000a1"

func authed() context.Context {
	return context.WithValue(context.Background(), addressKey, caller)
}

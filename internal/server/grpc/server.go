package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/logging"
	pb "github.com/dmitrijs2005/sealmail/internal/proto"
	"github.com/dmitrijs2005/sealmail/internal/server/models"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/sealmail/internal/server/services"
)

type userSvc interface {
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Register(ctx context.Context, handle string, publicKey, salt, verifier []byte) (*models.User, error)
	GetSalt(ctx context.Context, handle string) ([]byte, error)
	Login(ctx context.Context, handle string, verifierCandidate []byte) (*services.TokenPair, string, error)
}

type identitySvc interface {
	IdentityToOwner(ctx context.Context, handle string) (contract.Address, error)
	PublicKeyByIdentity(ctx context.Context, handle string) (string, error)
	OwnerToIdentity(ctx context.Context, address contract.Address) (string, error)
}

type storageSvc interface {
	PresignPut(ctx context.Context, id string) (string, error)
	PresignGet(ctx context.Context, id string) (string, error)
}

type ledgerSvc interface {
	Resolve(l contract.Address) contract.Address
	SchemaVersion(ctx context.Context, l contract.Address) (contract.SchemaVersion, error)
	Deploy(ctx context.Context, address, owner contract.Address, v contract.SchemaVersion) error
	Send(ctx context.Context, l, caller contract.Address, env services.Envelope) (int64, *contract.Receipt, error)
	AddRecipient(ctx context.Context, l, caller contract.Address, id int64, address contract.Address, env services.Envelope, role contract.Role) (*contract.Receipt, error)
	SetFlag(ctx context.Context, l, caller contract.Address, id int64, flag ledger.Flag, value bool) error
	GetByID(ctx context.Context, l, caller contract.Address, id int64) (contract.Email, error)
	List(ctx context.Context, l, caller contract.Address, folder ledger.Folder) ([]contract.Email, error)
	UserMetadata(ctx context.Context, l, caller contract.Address, id int64, address contract.Address, role contract.Role) (contract.Metadata, error)
	AddFromMigration(ctx context.Context, l, caller contract.Address, rec *contract.MigrationRecord) (*contract.Receipt, error)
	Events(ctx context.Context, l contract.Address, name string) ([]contract.Event, error)
}

type eventHub interface {
	Subscribe(topic string) (<-chan contract.Event, func())
}

type GRPCServer struct {
	pb.UnimplementedLedgerServer
	address   string
	users     userSvc
	identity  identitySvc
	storage   storageSvc
	ledger    ledgerSvc
	hub       eventHub
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, us userSvc, is identitySvc, ss storageSvc, ls ledgerSvc, hub eventHub, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		identity:  is,
		storage:   ss,
		ledger:    ls,
		hub:       hub,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamAccessTokenInterceptor),
	)

	pb.RegisterLedgerServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

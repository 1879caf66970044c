package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/logging"
	pb "github.com/dmitrijs2005/sealmail/internal/proto"
	"github.com/dmitrijs2005/sealmail/internal/server/auth"
)

type ctxKey string

const addressKey ctxKey = "address"

// publicMethods can be called without an access token.
var publicMethods = map[string]struct{}{
	pb.Ledger_Register_FullMethodName:     {},
	pb.Ledger_GetSalt_FullMethodName:      {},
	pb.Ledger_Login_FullMethodName:        {},
	pb.Ledger_RefreshToken_FullMethodName: {},
	pb.Ledger_Ping_FullMethodName:         {},
}

// AddressFromContext returns the authenticated caller.
func AddressFromContext(ctx context.Context) (contract.Address, bool) {
	a, ok := ctx.Value(addressKey).(contract.Address)
	return a, ok && a != ""
}

func metadataValue(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

func (s *GRPCServer) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	if _, ok := publicMethods[fullMethod]; ok {
		return ctx, nil
	}

	accessToken := metadataValue(ctx, common.AccessTokenHeaderName)
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	address, err := auth.GetAddressFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return nil, pb.ToStatus(err)
	}

	ctx = logging.ContextWith(ctx, "caller", address)
	return context.WithValue(ctx, addressKey, contract.Address(address)), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	ctx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

func (s *GRPCServer) streamAccessTokenInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
}

// loggingInterceptor tags the context with the client's request id, so
// handler logs carry it, and logs every unary call.
func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	ctx = logging.ContextWith(ctx, "request_id", metadataValue(ctx, common.RequestIDHeaderName))
	resp, err := handler(ctx, req)

	args := []any{
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	}
	if err != nil && status.Code(err) == codes.Internal {
		s.logger.Error(ctx, "request failed", append(args, "error", err)...)
	} else {
		s.logger.Info(ctx, "request", args...)
	}
	return resp, err
}

package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	pb "github.com/dmitrijs2005/sealmail/internal/proto"
	"github.com/dmitrijs2005/sealmail/internal/server/events"
)

// fail converts err to a status error. Errors without a domain meaning are
// logged here, since the client only sees "internal error".
func (s *GRPCServer) fail(ctx context.Context, err error) error {
	st := pb.ToStatus(err)
	if status.Code(st) == codes.Internal {
		s.logger.Error(ctx, err.Error())
	}
	return st
}

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	s.logger.Info(ctx, "Registration request")

	publicKey, err := pb.Bytes(req, "publicKey")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	salt, err := pb.Bytes(req, "salt")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	verifier, err := pb.Bytes(req, "verifier")
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	user, err := s.users.Register(ctx, pb.Str(req, "handle"), publicKey, salt, verifier)
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "handle", user.Handle, "address", user.Address)
	return pb.Strings("address", user.Address, "handle", user.Handle), nil
}

func (s *GRPCServer) GetSalt(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	salt, err := s.users.GetSalt(ctx, pb.Str(req, "handle"))
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	return pb.Strings("salt", pb.EncodeBytes(salt)), nil
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	verifier, err := pb.Bytes(req, "verifier")
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	tokens, address, err := s.users.Login(ctx, pb.Str(req, "handle"), verifier)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		return nil, s.fail(ctx, err)
	}

	return pb.Strings(
		"accessToken", tokens.AccessToken,
		"refreshToken", tokens.RefreshToken,
		"address", address,
	), nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	tokens, err := s.users.RefreshToken(ctx, pb.Str(req, "refreshToken"))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, s.fail(ctx, common.ErrInvalidToken)
		}
		return nil, s.fail(ctx, err)
	}

	return pb.Strings("accessToken", tokens.AccessToken, "refreshToken", tokens.RefreshToken), nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	return pb.Strings("status", "OK"), nil

}

func (s *GRPCServer) caller(ctx context.Context) (contract.Address, error) {
	a, ok := AddressFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return a, nil
}

// Call runs a read-only contract method.
func (s *GRPCServer) Call(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	c, err := contract.CallFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	m, err := lookup(c, false)
	if err != nil {
		return nil, err
	}
	result, _, err := m.run(s, ctx, caller, c)
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	v, err := contract.ToValue(result)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return v, nil
}

// Send runs a contract write and returns its receipt.
func (s *GRPCServer) Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	c, err := contract.CallFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	m, err := lookup(c, true)
	if err != nil {
		return nil, err
	}
	_, receipt, err := m.run(s, ctx, caller, c)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	if receipt == nil {
		receipt = &contract.Receipt{}
	}

	s.logger.Info(ctx, "transaction", "ledger", s.ledger.Resolve(c.Ledger), "method", c.Method,
		"caller", caller, "events", len(receipt.Events))

	out, err := receipt.ToStruct()
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return out, nil
}

// Events returns the historical events named by the "event" field.
func (s *GRPCServer) Events(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	l := contract.Address(pb.Str(req, "ledger"))

	evs, err := s.ledger.Events(ctx, l, pb.Str(req, "event"))
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(evs))}
	for _, e := range evs {
		es, err := e.ToStruct()
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		out.Values = append(out.Values, structpb.NewStructValue(es))
	}
	return out, nil
}

// Subscribe streams live events until the client goes away.
func (s *GRPCServer) Subscribe(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	name := pb.Str(req, "event")
	if name == "" {
		return status.Error(codes.InvalidArgument, "event must be set")
	}
	l := s.ledger.Resolve(contract.Address(pb.Str(req, "ledger")))

	ch, cancel := s.hub.Subscribe(events.Topic(l, name))
	defer cancel()

	// Headers tell the client the subscription is live.
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	s.logger.Info(ctx, "subscribed", "ledger", l, "event", name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			es, err := e.ToStruct()
			if err != nil {
				return s.fail(ctx, err)
			}
			if err := stream.Send(es); err != nil {
				return err
			}
		}
	}
}

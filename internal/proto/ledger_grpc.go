// Package proto declares the sealmail.ledger.Ledger gRPC service. Requests
// and responses are protobuf well-known types (structpb), so the service
// descriptor is written by hand instead of being generated from a .proto
// file.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "sealmail.ledger.Ledger"

const (
	Ledger_Call_FullMethodName         = "/" + ServiceName + "/Call"
	Ledger_Send_FullMethodName         = "/" + ServiceName + "/Send"
	Ledger_Events_FullMethodName       = "/" + ServiceName + "/Events"
	Ledger_Subscribe_FullMethodName    = "/" + ServiceName + "/Subscribe"
	Ledger_Register_FullMethodName     = "/" + ServiceName + "/Register"
	Ledger_GetSalt_FullMethodName      = "/" + ServiceName + "/GetSalt"
	Ledger_Login_FullMethodName        = "/" + ServiceName + "/Login"
	Ledger_RefreshToken_FullMethodName = "/" + ServiceName + "/RefreshToken"
	Ledger_Ping_FullMethodName         = "/" + ServiceName + "/Ping"
)

// LedgerClient is the client API for the Ledger service.
type LedgerClient interface {
	// Call runs a read-only contract method and returns its result.
	Call(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	// Send runs a contract write and returns its receipt.
	Send(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Events(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Subscribe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)

	Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetSalt(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	RefreshToken(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Ping(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type ledgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) LedgerClient {
	return &ledgerClient{cc}
}

func invoke[T any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *structpb.Struct, opts []grpc.CallOption) (*T, error) {
	out := new(T)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerClient) Call(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return invoke[structpb.Value](ctx, c.cc, Ledger_Call_FullMethodName, in, opts)
}

func (c *ledgerClient) Send(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, Ledger_Send_FullMethodName, in, opts)
}

func (c *ledgerClient) Events(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, Ledger_Events_FullMethodName, in, opts)
}

func (c *ledgerClient) Subscribe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &Ledger_ServiceDesc.Streams[0], Ledger_Subscribe_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *ledgerClient) Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, Ledger_Register_FullMethodName, in, opts)
}

func (c *ledgerClient) GetSalt(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, Ledger_GetSalt_FullMethodName, in, opts)
}

func (c *ledgerClient) Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, Ledger_Login_FullMethodName, in, opts)
}

func (c *ledgerClient) RefreshToken(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, Ledger_RefreshToken_FullMethodName, in, opts)
}

func (c *ledgerClient) Ping(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, Ledger_Ping_FullMethodName, in, opts)
}

// LedgerServer is the server API for the Ledger service.
// Implementations must embed UnimplementedLedgerServer.
type LedgerServer interface {
	Call(context.Context, *structpb.Struct) (*structpb.Value, error)
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Events(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	Subscribe(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error

	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSalt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)

	mustEmbedUnimplementedLedgerServer()
}

type UnimplementedLedgerServer struct{}

func (UnimplementedLedgerServer) Call(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method Call not implemented")
}
func (UnimplementedLedgerServer) Send(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Send not implemented")
}
func (UnimplementedLedgerServer) Events(context.Context, *structpb.Struct) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Events not implemented")
}
func (UnimplementedLedgerServer) Subscribe(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Error(codes.Unimplemented, "method Subscribe not implemented")
}
func (UnimplementedLedgerServer) Register(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Register not implemented")
}
func (UnimplementedLedgerServer) GetSalt(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetSalt not implemented")
}
func (UnimplementedLedgerServer) Login(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Login not implemented")
}
func (UnimplementedLedgerServer) RefreshToken(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method RefreshToken not implemented")
}
func (UnimplementedLedgerServer) Ping(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Ping not implemented")
}
func (UnimplementedLedgerServer) mustEmbedUnimplementedLedgerServer() {}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&Ledger_ServiceDesc, srv)
}

func unaryMethod[Resp any](name, fullMethod string, call func(LedgerServer, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func _Ledger_Subscribe_Handler(srv any, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(LedgerServer).Subscribe(m, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Ledger_ServiceDesc is the grpc.ServiceDesc for the Ledger service.
var Ledger_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Call", Ledger_Call_FullMethodName, LedgerServer.Call),
		unaryMethod("Send", Ledger_Send_FullMethodName, LedgerServer.Send),
		unaryMethod("Events", Ledger_Events_FullMethodName, LedgerServer.Events),
		unaryMethod("Register", Ledger_Register_FullMethodName, LedgerServer.Register),
		unaryMethod("GetSalt", Ledger_GetSalt_FullMethodName, LedgerServer.GetSalt),
		unaryMethod("Login", Ledger_Login_FullMethodName, LedgerServer.Login),
		unaryMethod("RefreshToken", Ledger_RefreshToken_FullMethodName, LedgerServer.RefreshToken),
		unaryMethod("Ping", Ledger_Ping_FullMethodName, LedgerServer.Ping),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       _Ledger_Subscribe_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "sealmail/ledger.proto",
}

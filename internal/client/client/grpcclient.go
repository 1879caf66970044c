package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
	pb "github.com/dmitrijs2005/sealmail/internal/proto"
)

type GRPCClient struct {
	endpointURL string
	ledger      contract.Address
	conn        *grpc.ClientConn
	client      pb.LedgerClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)
	if len(md.Get(common.RequestIDHeaderName)) == 0 {
		md.Set(common.RequestIDHeaderName, uuid.NewString())
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.refreshToken = access, refresh
}


// refresh exchanges the refresh token for a new pair.
func (s *GRPCClient) refresh(ctx context.Context) error {
	_, refreshToken := s.tokens()
	if refreshToken == "" {
		return common.ErrorUnauthorized
	}

	resp, err := s.client.RefreshToken(ctx, pb.Strings("refreshToken", refreshToken))
	if err != nil {
		return err
	}

	s.setTokens(pb.Str(resp, "accessToken"), pb.Str(resp, "refreshToken"))
	return nil
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	accessToken, refreshToken := s.tokens()
	ctx = withAccessToken(ctx, accessToken)

	err := invoker(ctx, method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) || refreshToken == "" {
		return err
	}

	if err := s.refresh(ctx); err != nil {
		return err
	}

	// tokens refreshed, retry with the new access token
	accessToken, _ = s.tokens()
	return invoker(withAccessToken(ctx, accessToken), method, req, reply, cc, opts...)
}

// streamAccessTokenInterceptor attaches the current access token to new
// streams. Expiry on a stream surfaces on the first Recv; Subscribe handles
// it by refreshing and reopening.
func (s *GRPCClient) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	accessToken, _ := s.tokens()
	return streamer(withAccessToken(ctx, accessToken), desc, cc, method, opts...)
}

// NewLedgerClient connects to the ledger server at endpointURL. Calls that
// name no ledger go to ledger, or to the server default when ledger is empty.
func NewLedgerClient(endpointURL string, ledger contract.Address) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, ledger: ledger}
	err := c.InitGRPCClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStreamInterceptor(s.streamAccessTokenInterceptor),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = pb.NewLedgerClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Ledger returns the ledger address calls default to.
func (s *GRPCClient) Ledger() contract.Address {
	return s.ledger
}

func (s *GRPCClient) Register(ctx context.Context, handle string, publicKey cryptox.PublicKey, salt, verifier []byte) (contract.Address, error) {
	req := pb.Strings(
		"handle", handle,
		"publicKey", pb.EncodeBytes(publicKey[:]),
		"salt", pb.EncodeBytes(salt),
		"verifier", pb.EncodeBytes(verifier),
	)

	resp, err := s.client.Register(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}

	return contract.Address(pb.Str(resp, "address")), nil
}

func (s *GRPCClient) GetSalt(ctx context.Context, handle string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 12*time.Second)
	defer cancel()

	resp, err := s.client.GetSalt(ctx, pb.Strings("handle", handle))
	if err != nil {
		return nil, s.mapError(err)
	}
	return pb.Bytes(resp, "salt")
}

// Login authenticates handle and keeps the issued tokens for later calls.
func (s *GRPCClient) Login(ctx context.Context, handle string, verifier []byte) (contract.Address, error) {
	req := pb.Strings("handle", handle, "verifier", pb.EncodeBytes(verifier))

	resp, err := s.client.Login(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}

	s.setTokens(pb.Str(resp, "accessToken"), pb.Str(resp, "refreshToken"))

	return contract.Address(pb.Str(resp, "address")), nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &structpb.Struct{})
	if err != nil {
		return s.mapError(err)
	}

	if pb.Str(resp, "status") != "OK" {
		return ErrUnavailable
	}

	return nil
}

func (s *GRPCClient) withLedger(c contract.Call) contract.Call {
	if c.Ledger == "" {
		c.Ledger = s.ledger
	}
	return c
}

// Call runs a read-only contract method and returns its decoded result.
func (s *GRPCClient) Call(ctx context.Context, c contract.Call) (any, error) {
	req, err := s.withLedger(c).ToStruct()
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Call(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.AsInterface(), nil
}

// Send runs a contract write and returns its receipt.
func (s *GRPCClient) Send(ctx context.Context, c contract.Call) (*contract.Receipt, error) {
	req, err := s.withLedger(c).ToStruct()
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Send(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return contract.ReceiptFromStruct(resp), nil
}

func eventQuery(ledger contract.Address, name string) *structpb.Struct {
	return pb.Strings("ledger", string(ledger), "event", name)
}

// Events returns the recorded events called name of ledger, oldest first.
func (s *GRPCClient) Events(ctx context.Context, ledger contract.Address, name string) ([]contract.Event, error) {
	if ledger == "" {
		ledger = s.ledger
	}

	resp, err := s.client.Events(ctx, eventQuery(ledger, name))
	if err != nil {
		return nil, s.mapError(err)
	}

	out := make([]contract.Event, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		out = append(out, contract.EventFromStruct(v.GetStructValue()))
	}
	return out, nil
}

// EventStream yields live events until its context is canceled.
type EventStream interface {
	Recv() (contract.Event, error)
}

type eventStream struct {
	stream grpc.ServerStreamingClient[structpb.Struct]
}

func (e *eventStream) Recv() (contract.Event, error) {
	m, err := e.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return contract.Event{}, io.EOF
		}
		return contract.Event{}, pb.FromStatus(err)
	}
	return contract.EventFromStruct(m), nil
}

// Subscribe opens a live stream of the events called name on ledger. An
// expired access token is refreshed once before giving up.
func (s *GRPCClient) Subscribe(ctx context.Context, ledger contract.Address, name string) (EventStream, error) {
	if ledger == "" {
		ledger = s.ledger
	}

	stream, err := s.client.Subscribe(ctx, eventQuery(ledger, name))
	if err != nil {
		return nil, s.mapError(err)
	}

	// Headers arrive once the server has accepted the stream, so auth
	// failures are reported here instead of on the first event.
	if _, err := stream.Header(); err != nil && isTokenExpired(err) {
		if err := s.refresh(ctx); err != nil {
			return nil, s.mapError(err)
		}
		if stream, err = s.client.Subscribe(ctx, eventQuery(ledger, name)); err != nil {
			return nil, s.mapError(err)
		}
	}

	return &eventStream{stream: stream}, nil
}

// PresignPut asks the server for an upload URL for blob id.
func (s *GRPCClient) PresignPut(ctx context.Context, id string) (string, error) {
	return s.presign(ctx, contract.MethodPresignPut, id)
}

// PresignGet asks the server for a download URL for blob id.
func (s *GRPCClient) PresignGet(ctx context.Context, id string) (string, error) {
	return s.presign(ctx, contract.MethodPresignGet, id)
}

func (s *GRPCClient) presign(ctx context.Context, method, id string) (string, error) {
	res, err := s.Call(ctx, contract.Call{
		Contract: contract.ContractStorage,
		Method:   method,
		Params:   contract.Params{id},
	})
	if err != nil {
		return "", err
	}
	url, ok := res.(string)
	if !ok || url == "" {
		return "", fmt.Errorf("%s: unexpected result %T", method, res)
	}
	return url, nil
}

package client

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/sealmail/internal/common"
	pb "github.com/dmitrijs2005/sealmail/internal/proto"
)

var (
	// ErrUnavailable means the server could not be reached; the CLI falls
	// back to offline mode on it.
	ErrUnavailable = errors.New("server unavailable")
	// ErrLocalDataNotAvailable means there is no stored session to log in
	// offline with.
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
)

func isTokenExpired(err error) bool {
	return errors.Is(pb.FromStatus(err), common.ErrTokenExpired)
}

// mapError turns a status error back into the domain error it was made
// from. Transport failures become ErrUnavailable.
func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}

	mapped := pb.FromStatus(err)
	if mapped != err {
		return mapped
	}

	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

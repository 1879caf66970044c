package proto

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/sealmail/internal/common"
)

// ErrorDomain is the ErrorInfo domain of every status the ledger returns.
const ErrorDomain = "sealmail"

type errorKind struct {
	reason string
	code   codes.Code
	err    error
}

// Order matters: the typed errors unwrap to the sentinels listed after them.
var errorKinds = []errorKind{
	{"DUPLICATE_RECIPIENT", codes.AlreadyExists, common.ErrDuplicateRecipient},
	{"INVALID_RECIPIENT", codes.InvalidArgument, common.ErrInvalidRecipient},
	{"NOT_FOUND", codes.NotFound, common.ErrorNotFound},
	{"ALREADY_EXISTS", codes.AlreadyExists, common.ErrAlreadyExists},
	{"INVALID_PARAMS", codes.InvalidArgument, common.ErrInvalidParams},
	{"UNSUPPORTED_BY_SCHEMA", codes.FailedPrecondition, common.ErrUnsupportedBySchema},
	{"FORBIDDEN", codes.PermissionDenied, common.ErrForbidden},
	{"REFRESH_TOKEN_EXPIRED", codes.Unauthenticated, common.ErrRefreshTokenExpired},
	{"TOKEN_EXPIRED", codes.Unauthenticated, common.ErrTokenExpired},
	{"INVALID_TOKEN", codes.Unauthenticated, common.ErrInvalidToken},
	{"UNAUTHORIZED", codes.Unauthenticated, common.ErrorUnauthorized},
}

// ToStatus converts a domain error into a gRPC status error carrying an
// ErrorInfo detail. Unknown errors become codes.Internal without their text.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	for _, k := range errorKinds {
		if !errors.Is(err, k.err) {
			continue
		}
		info := &errdetails.ErrorInfo{Reason: k.reason, Domain: ErrorDomain}

		var dup *common.DuplicateRecipientError
		var inv *common.InvalidRecipientError
		switch {
		case errors.As(err, &dup):
			info.Metadata = map[string]string{"address": dup.Address, "role": dup.Role}
		case errors.As(err, &inv):
			info.Metadata = map[string]string{"identity": inv.Identity}
		}

		st, detErr := status.New(k.code, err.Error()).WithDetails(info)
		if detErr != nil {
			return status.Error(k.code, err.Error())
		}
		return st.Err()
	}

	return status.Error(codes.Internal, "internal error")
}

// FromStatus maps a status error produced by ToStatus back to the domain
// error. Other errors are returned unchanged.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return err
	}

	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		md := info.GetMetadata()
		switch info.GetReason() {
		case "DUPLICATE_RECIPIENT":
			return &common.DuplicateRecipientError{Address: md["address"], Role: md["role"]}
		case "INVALID_RECIPIENT":
			return &common.InvalidRecipientError{Identity: md["identity"]}
		}
		for _, k := range errorKinds {
			if k.reason == info.GetReason() {
				return &statusError{err: k.err, msg: st.Message()}
			}
		}
	}

	switch st.Code() {
	case codes.NotFound:
		return &statusError{err: common.ErrorNotFound, msg: st.Message()}
	case codes.Unauthenticated:
		return &statusError{err: common.ErrorUnauthorized, msg: st.Message()}
	case codes.PermissionDenied:
		return &statusError{err: common.ErrForbidden, msg: st.Message()}
	}
	return err
}

// statusError keeps the server's message while matching the sentinel.
type statusError struct {
	err error
	msg string
}

func (e *statusError) Error() string { return e.msg }
func (e *statusError) Unwrap() error { return e.err }

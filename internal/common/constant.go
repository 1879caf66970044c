package common

const (
	// AccessTokenHeaderName is the gRPC metadata key carrying the access token.
	AccessTokenHeaderName = "access_token"

	// RequestIDHeaderName is the gRPC metadata key carrying the client request id.
	RequestIDHeaderName = "request_id"
)

package proto

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/sealmail/internal/common"
)

// Str returns the string field key of s, or "".
func Str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// Bytes returns the base64-encoded field key of s.
func Bytes(s *structpb.Struct, key string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(Str(s, key))
	if err != nil {
		return nil, fmt.Errorf("%w: field %s: %v", common.ErrInvalidParams, key, err)
	}
	return b, nil
}

// EncodeBytes is the inverse of Bytes.
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Strings builds a struct whose fields are all strings.
func Strings(kv ...string) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = structpb.NewStringValue(kv[i+1])
	}
	return &structpb.Struct{Fields: fields}
}

package contract

import (
	"encoding/base64"
	"fmt"
	"math"

	"github.com/dmitrijs2005/sealmail/internal/common"
)

// Params are positional call arguments. Accessors accept both in-process Go
// values and the JSON-like values produced by the protobuf decoder.
type Params []any

func (p Params) at(i int) (any, error) {
	if i < 0 || i >= len(p) {
		return nil, fmt.Errorf("%w: missing param %d", common.ErrInvalidParams, i)
	}
	return p[i], nil
}

func (p Params) Int64(i int) (int64, error) {
	v, err := p.at(i)
	if err != nil {
		return 0, err
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("param %d: %w", i, err)
	}
	return n, nil
}

func (p Params) Str(i int) (string, error) {
	v, err := p.at(i)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case Address:
		return string(s), nil
	case Role:
		return string(s), nil
	}
	return "", fmt.Errorf("%w: param %d is %T, want string", common.ErrInvalidParams, i, v)
}

func (p Params) Bool(i int) (bool, error) {
	v, err := p.at(i)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: param %d is %T, want bool", common.ErrInvalidParams, i, v)
	}
	return b, nil
}

// Bytes decodes a base64 param. Raw []byte values are accepted as is.
func (p Params) Bytes(i int) ([]byte, error) {
	v, err := p.at(i)
	if err != nil {
		return nil, err
	}
	return toBytes(v)
}

func (p Params) Address(i int) (Address, error) {
	s, err := p.Str(i)
	if err != nil {
		return "", err
	}
	return Address(s), nil
}

func (p Params) Addresses(i int) ([]Address, error) {
	v, err := p.at(i)
	if err != nil {
		return nil, err
	}
	return toAddresses(v)
}

// List returns a nested list param, e.g. the metadata tuples of a migration.
func (p Params) List(i int) ([]any, error) {
	v, err := p.at(i)
	if err != nil {
		return nil, err
	}
	switch l := v.(type) {
	case []any:
		return l, nil
	case Params:
		return l, nil
	case [][]any:
		out := make([]any, len(l))
		for j := range l {
			out[j] = l[j]
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: param %d is %T, want list", common.ErrInvalidParams, i, v)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %v is not an integer", common.ErrInvalidParams, n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("%w: %T is not a number", common.ErrInvalidParams, v)
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		out, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64: %v", common.ErrInvalidParams, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T is not bytes", common.ErrInvalidParams, v)
}

func toAddresses(v any) ([]Address, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case []Address:
		return l, nil
	case []string:
		out := make([]Address, len(l))
		for i, s := range l {
			out[i] = Address(s)
		}
		return out, nil
	case []any:
		out := make([]Address, 0, len(l))
		for _, e := range l {
			switch s := e.(type) {
			case string:
				out = append(out, Address(s))
			case Address:
				out = append(out, s)
			default:
				return nil, fmt.Errorf("%w: %T is not an address", common.ErrInvalidParams, e)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T is not an address list", common.ErrInvalidParams, v)
}

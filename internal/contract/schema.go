package contract

import (
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/sealmail/internal/common"
)

// SchemaVersion selects the positional layout of message and metadata
// tuples. Each ledger instance is created with one version and keeps it.
type SchemaVersion int

const (
	V0 SchemaVersion = iota
	V1
	V2

	LatestSchema = V2
)

func ParseSchemaVersion(n int64) (SchemaVersion, error) {
	v := SchemaVersion(n)
	if v < V0 || v > LatestSchema {
		return 0, fmt.Errorf("%w: unknown schema version %d", common.ErrInvalidParams, n)
	}
	return v, nil
}

func (v SchemaVersion) String() string { return fmt.Sprintf("v%d", int(v)) }

// SupportsCc reports whether the version can store cc recipients.
func (v SchemaVersion) SupportsCc() bool { return v >= V2 }

// TracksRead reports whether the version stores the read flag.
func (v SchemaVersion) TracksRead() bool { return v >= V1 }

func (v SchemaVersion) emailTupleLen() int {
	switch v {
	case V0:
		return 8
	case V1:
		return 9
	default:
		return 10
	}
}

// Email is a message as seen by one participant: the shared message fields
// plus that participant's envelope and flags.
type Email struct {
	ID         int64
	From       Address
	To         []Address
	Cc         []Address
	CreatedAt  int64
	StorageID  string
	WrappedKey []byte
	Important  bool
	Deleted    bool
	Read       bool
}

// EncodeEmail lays e out as a tuple of version v. A V0 or V1 tuple cannot
// carry cc recipients.
func EncodeEmail(v SchemaVersion, e Email) ([]any, error) {
	if len(e.Cc) > 0 && !v.SupportsCc() {
		return nil, fmt.Errorf("%w: cc on %s", common.ErrUnsupportedBySchema, v)
	}

	wrapped := base64.StdEncoding.EncodeToString(e.WrappedKey)

	switch v {
	case V0:
		return []any{e.ID, e.From, e.To, e.StorageID, e.CreatedAt, wrapped, e.Important, e.Deleted}, nil
	case V1:
		return []any{e.ID, e.From, e.To, e.StorageID, e.CreatedAt, wrapped, e.Important, e.Deleted, e.Read}, nil
	case V2:
		return []any{e.ID, e.From, e.To, e.Cc, e.CreatedAt, e.StorageID, wrapped, e.Important, e.Deleted, e.Read}, nil
	}
	return nil, fmt.Errorf("%w: unknown schema version %d", common.ErrInvalidParams, v)
}

// DecodeEmail parses a tuple of version v. Fields a version lacks are left
// at their zero value.
func DecodeEmail(v SchemaVersion, tuple []any) (Email, error) {
	if len(tuple) != v.emailTupleLen() {
		return Email{}, fmt.Errorf("%w: %s email tuple has %d fields, want %d",
			common.ErrInvalidParams, v, len(tuple), v.emailTupleLen())
	}

	r := &tupleReader{p: tuple}
	e := Email{
		ID:   r.readInt64(0),
		From: r.readAddress(1),
		To:   r.readAddresses(2),
	}

	switch v {
	case V0, V1:
		e.StorageID = r.readString(3)
		e.CreatedAt = r.readInt64(4)
		e.WrappedKey = r.readBytes(5)
		e.Important = r.readBool(6)
		e.Deleted = r.readBool(7)
		if v == V1 {
			e.Read = r.readBool(8)
		}
	case V2:
		e.Cc = r.readAddresses(3)
		e.CreatedAt = r.readInt64(4)
		e.StorageID = r.readString(5)
		e.WrappedKey = r.readBytes(6)
		e.Important = r.readBool(7)
		e.Deleted = r.readBool(8)
		e.Read = r.readBool(9)
	}

	return e, r.err
}

// tupleReader keeps the first decoding error so field reads can be chained.
type tupleReader struct {
	p   Params
	err error
}

func (r *tupleReader) readInt64(i int) int64 {
	if r.err != nil {
		return 0
	}
	n, err := r.p.Int64(i)
	r.err = err
	return n
}

func (r *tupleReader) readString(i int) string {
	if r.err != nil {
		return ""
	}
	s, err := r.p.Str(i)
	r.err = err
	return s
}

func (r *tupleReader) readBool(i int) bool {
	if r.err != nil {
		return false
	}
	b, err := r.p.Bool(i)
	r.err = err
	return b
}

func (r *tupleReader) readBytes(i int) []byte {
	if r.err != nil {
		return nil
	}
	b, err := r.p.Bytes(i)
	r.err = err
	return b
}

func (r *tupleReader) readAddress(i int) Address {
	return Address(r.readString(i))
}

func (r *tupleReader) readAddresses(i int) []Address {
	if r.err != nil {
		return nil
	}
	a, err := r.p.Addresses(i)
	r.err = err
	return a
}

// Metadata is one participant's envelope and flags on a message.
type Metadata struct {
	StorageID  string `json:"encryptedMessageId"`
	WrappedKey []byte `json:"encryptedSymmetricObj"`
	Important  bool   `json:"important"`
	Deleted    bool   `json:"deleted"`
	Read       bool   `json:"read"`
}

// EncodeMetadata lays m out as storageId, wrappedKey, important, deleted and,
// from V1 on, read.
func EncodeMetadata(v SchemaVersion, m Metadata) []any {
	t := []any{m.StorageID, base64.StdEncoding.EncodeToString(m.WrappedKey), m.Important, m.Deleted}
	if v.TracksRead() {
		t = append(t, m.Read)
	}
	return t
}

// DecodeMetadata parses a metadata tuple of version v. V0 tuples carry no
// read flag; readDefault is used instead.
func DecodeMetadata(v SchemaVersion, tuple []any, readDefault bool) (Metadata, error) {
	var m Metadata

	want := 4
	if v.TracksRead() {
		want = 5
	}
	if len(tuple) != want {
		return m, fmt.Errorf("%w: %s metadata tuple has %d fields, want %d",
			common.ErrInvalidParams, v, len(tuple), want)
	}

	r := &tupleReader{p: tuple}
	m.StorageID = r.readString(0)
	m.WrappedKey = r.readBytes(1)
	m.Important = r.readBool(2)
	m.Deleted = r.readBool(3)

	m.Read = readDefault
	if v.TracksRead() {
		m.Read = r.readBool(4)
	}
	if r.err != nil {
		return Metadata{}, r.err
	}
	return m, nil
}

package contract

import (
	"fmt"

	"github.com/dmitrijs2005/sealmail/internal/common"
)

// MigrationRecord is a full snapshot of one message and all its
// participant records. Users and Metadata are parallel lists ordered
// [from, to..., cc...]. The JSON form is the on-disk migration cache format.
type MigrationRecord struct {
	ID        int64      `json:"id"`
	From      Address    `json:"from"`
	To        []Address  `json:"to"`
	Cc        []Address  `json:"cc"`
	CreatedAt int64      `json:"createdAt"`
	Users     []Address  `json:"users"`
	Metadata  []Metadata `json:"metadata"`
}

// Roles returns the role of each entry of Users.
func (r *MigrationRecord) Roles() []Role {
	roles := make([]Role, 0, 1+len(r.To)+len(r.Cc))
	roles = append(roles, RoleFrom)
	for range r.To {
		roles = append(roles, RoleTo)
	}
	for range r.Cc {
		roles = append(roles, RoleCc)
	}
	return roles
}

// Validate checks the structural invariants of a record. Users must be
// exactly [From, To..., Cc...], since roles are read off positions.
func (r *MigrationRecord) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", common.ErrInvalidParams)
	}
	if r.From.IsZero() {
		return &common.InvalidRecipientError{Identity: string(r.From)}
	}
	want := 1 + len(r.To) + len(r.Cc)
	if len(r.Users) != want || len(r.Metadata) != want {
		return fmt.Errorf("%w: %d users and %d metadata for %d participants",
			common.ErrInvalidParams, len(r.Users), len(r.Metadata), want)
	}
	if r.Users[0] != r.From {
		return fmt.Errorf("%w: first user must be the sender", common.ErrInvalidParams)
	}
	for i, a := range append(append([]Address{}, r.To...), r.Cc...) {
		if r.Users[1+i] != a {
			return fmt.Errorf("%w: user %d is %s, want %s", common.ErrInvalidParams, 1+i, r.Users[1+i], a)
		}
	}
	return nil
}

// EncodeMigration builds the params of addEmailFromMigration for a target
// ledger of version v.
func EncodeMigration(v SchemaVersion, r *MigrationRecord) (Params, error) {
	if len(r.Cc) > 0 && !v.SupportsCc() {
		return nil, fmt.Errorf("%w: cc on %s", common.ErrUnsupportedBySchema, v)
	}

	metadata := make([]any, len(r.Metadata))
	for i, m := range r.Metadata {
		metadata[i] = EncodeMetadata(v, m)
	}

	cc := r.Cc
	if cc == nil {
		cc = []Address{}
	}

	return Params{r.ID, r.From, r.To, cc, r.CreatedAt, r.Users, metadata}, nil
}

// DecodeMigration parses addEmailFromMigration params for a ledger of
// version v.
func DecodeMigration(v SchemaVersion, p Params) (*MigrationRecord, error) {
	if len(p) != 7 {
		return nil, fmt.Errorf("%w: migration takes 7 params, got %d", common.ErrInvalidParams, len(p))
	}

	r := &tupleReader{p: p}
	rec := &MigrationRecord{
		ID:        r.readInt64(0),
		From:      r.readAddress(1),
		To:        r.readAddresses(2),
		Cc:        r.readAddresses(3),
		CreatedAt: r.readInt64(4),
		Users:     r.readAddresses(5),
	}
	if r.err != nil {
		return nil, r.err
	}

	if len(rec.Cc) > 0 && !v.SupportsCc() {
		return nil, fmt.Errorf("%w: cc on %s", common.ErrUnsupportedBySchema, v)
	}

	list, err := p.List(6)
	if err != nil {
		return nil, err
	}
	rec.Metadata = make([]Metadata, 0, len(list))
	for i, item := range list {
		tuple, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: metadata %d is %T", common.ErrInvalidParams, i, item)
		}
		m, err := DecodeMetadata(v, tuple, i == 0)
		if err != nil {
			return nil, fmt.Errorf("metadata %d: %w", i, err)
		}
		rec.Metadata = append(rec.Metadata, m)
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

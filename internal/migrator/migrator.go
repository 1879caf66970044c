// Package migrator copies messages between two ledger instances, possibly
// of different schema versions, keeping their ids, timestamps, envelopes
// and flags.
//
// A run walks ids 1..LastMessageID(source) in order. Ids already migrated to
// the target, ids that do not exist and ids with a zero sender are skipped.
// Per-id failures are logged and counted, and the run goes on.
//
// Messages can also be staged through a directory of JSON files (one
// MigrationRecord per file), so that the download and the upload happen at
// different times.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/logging"
)

// ErrSkipped marks an id that has nothing to migrate.
var ErrSkipped = errors.New("nothing to migrate")

// Ledger is the part of the ledger client the migrator needs. The caller
// must be the owner of both instances.
type Ledger interface {
	Call(ctx context.Context, c contract.Call) (any, error)
	Send(ctx context.Context, c contract.Call) (*contract.Receipt, error)
	Events(ctx context.Context, ledger contract.Address, name string) ([]contract.Event, error)
}

// Stats counts the outcome of a run.
type Stats struct {
	Migrated int
	Skipped  int
	Failed   int
}

func (s Stats) String() string {
	return fmt.Sprintf("migrated=%d skipped=%d failed=%d", s.Migrated, s.Skipped, s.Failed)
}

type Migrator struct {
	ledger Ledger
	logger logging.Logger
}

func New(l Ledger, logger logging.Logger) *Migrator {
	return &Migrator{ledger: l, logger: logger.With("module", "migrator")}
}

// LastMessageID returns the highest id created on or migrated to ledger,
// or 0 for an empty ledger.
func (m *Migrator) LastMessageID(ctx context.Context, ledger contract.Address) (int64, error) {
	var last int64
	for _, name := range []string{contract.EventEmailCreated, contract.EventEmailMigrated} {
		evs, err := m.ledger.Events(ctx, ledger, name)
		if err != nil {
			return 0, fmt.Errorf("%s events: %w", name, err)
		}
		for _, e := range evs {
			id, err := e.ID()
			if err != nil {
				return 0, fmt.Errorf("%s event: %w", name, err)
			}
			if id > last {
				last = id
			}
		}
	}
	return last, nil
}

// AlreadyMigrated returns the ids carried by the EmailMigrated events of
// ledger.
func (m *Migrator) AlreadyMigrated(ctx context.Context, ledger contract.Address) (map[int64]struct{}, error) {
	evs, err := m.ledger.Events(ctx, ledger, contract.EventEmailMigrated)
	if err != nil {
		return nil, fmt.Errorf("%s events: %w", contract.EventEmailMigrated, err)
	}
	done := make(map[int64]struct{}, len(evs))
	for _, e := range evs {
		id, err := e.ID()
		if err != nil {
			return nil, fmt.Errorf("%s event: %w", contract.EventEmailMigrated, err)
		}
		done[id] = struct{}{}
	}
	return done, nil
}

// SchemaVersion returns the schema version of ledger.
func (m *Migrator) SchemaVersion(ctx context.Context, ledger contract.Address) (contract.SchemaVersion, error) {
	res, err := m.ledger.Call(ctx, contract.Call{
		Ledger:   ledger,
		Contract: contract.ContractMail,
		Method:   contract.MethodSchemaVersion,
	})
	if err != nil {
		return 0, err
	}
	n, err := contract.Params{res}.Int64(0)
	if err != nil {
		return 0, fmt.Errorf("schemaVersion: %w", err)
	}
	return contract.ParseSchemaVersion(n)
}

// Fetch reads message id from a source ledger of version v together with
// the metadata of every participant. A missing id or one with a zero sender
// is ErrSkipped.
func (m *Migrator) Fetch(ctx context.Context, source contract.Address, v contract.SchemaVersion, id int64) (*contract.MigrationRecord, error) {
	res, err := m.ledger.Call(ctx, contract.Call{
		Ledger:   source,
		Contract: contract.ContractMail,
		Method:   contract.MethodGetEmailByID,
		Params:   contract.Params{id},
	})
	if errors.Is(err, common.ErrorNotFound) {
		return nil, ErrSkipped
	}
	if err != nil {
		return nil, fmt.Errorf("getEmailById: %w", err)
	}

	tuple, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: getEmailById returned %T", common.ErrInvalidParams, res)
	}
	e, err := contract.DecodeEmail(v, tuple)
	if err != nil {
		return nil, err
	}
	if e.From.IsZero() {
		return nil, ErrSkipped
	}

	rec := &contract.MigrationRecord{
		ID:        e.ID,
		From:      e.From,
		To:        nonNil(e.To),
		Cc:        nonNil(e.Cc),
		CreatedAt: e.CreatedAt,
	}
	rec.Users = make([]contract.Address, 0, 1+len(rec.To)+len(rec.Cc))
	rec.Users = append(rec.Users, rec.From)
	rec.Users = append(rec.Users, rec.To...)
	rec.Users = append(rec.Users, rec.Cc...)

	roles := rec.Roles()
	rec.Metadata = make([]contract.Metadata, 0, len(rec.Users))
	for i, user := range rec.Users {
		md, err := m.userMetadata(ctx, source, v, id, user, roles[i])
		if err != nil {
			return nil, fmt.Errorf("metadata of %s (%s): %w", user, roles[i], err)
		}
		rec.Metadata = append(rec.Metadata, md)
	}
	return rec, nil
}

func (m *Migrator) userMetadata(ctx context.Context, ledger contract.Address, v contract.SchemaVersion,
	id int64, user contract.Address, role contract.Role) (contract.Metadata, error) {

	res, err := m.ledger.Call(ctx, contract.Call{
		Ledger:   ledger,
		Contract: contract.ContractMail,
		Method:   contract.MethodEmailUserMetadata,
		Params:   contract.Params{id, user, role},
	})
	if err != nil {
		return contract.Metadata{}, err
	}
	tuple, ok := res.([]any)
	if !ok {
		return contract.Metadata{}, fmt.Errorf("%w: emailUserMetadata returned %T", common.ErrInvalidParams, res)
	}
	// V0 ledgers have no read flag; the sender's own copy counts as read.
	return contract.DecodeMetadata(v, tuple, role == contract.RoleFrom)
}

// Upload inserts rec into a target ledger of version v. An id that exists
// on the target already is common.ErrAlreadyExists.
func (m *Migrator) Upload(ctx context.Context, target contract.Address, v contract.SchemaVersion, rec *contract.MigrationRecord) error {
	params, err := contract.EncodeMigration(v, rec)
	if err != nil {
		return err
	}
	r, err := m.ledger.Send(ctx, contract.Call{
		Ledger:   target,
		Contract: contract.ContractMail,
		Method:   contract.MethodAddEmailFromMigration,
		Params:   params,
	})
	if err != nil {
		return fmt.Errorf("addEmailFromMigration: %w", err)
	}
	if _, ok := r.Find(contract.EventEmailMigrated); !ok {
		return fmt.Errorf("receipt has no %s event", contract.EventEmailMigrated)
	}
	return nil
}

// Migrate copies every message of source that target does not hold yet.
// It stops early only when ctx is done.
func (m *Migrator) Migrate(ctx context.Context, source, target contract.Address) (Stats, error) {
	var st Stats

	logger := m.logger.With("run", uuid.NewString(), "source", source, "target", target)

	sv, err := m.SchemaVersion(ctx, source)
	if err != nil {
		return st, fmt.Errorf("source schema version: %w", err)
	}
	tv, err := m.SchemaVersion(ctx, target)
	if err != nil {
		return st, fmt.Errorf("target schema version: %w", err)
	}
	last, err := m.LastMessageID(ctx, source)
	if err != nil {
		return st, err
	}
	done, err := m.AlreadyMigrated(ctx, target)
	if err != nil {
		return st, err
	}

	logger.Info(ctx, "migration started", "last_id", last, "source_version", sv, "target_version", tv)

	for id := int64(1); id <= last; id++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if _, ok := done[id]; ok {
			st.Skipped++
			continue
		}

		rec, err := m.Fetch(ctx, source, sv, id)
		if errors.Is(err, ErrSkipped) {
			logger.Info(ctx, "nothing to migrate", "id", id)
			st.Skipped++
			continue
		}
		if err == nil {
			err = m.Upload(ctx, target, tv, rec)
		}
		if err != nil {
			logger.Error(ctx, "migration failed", "id", id, "error", err)
			st.Failed++
			continue
		}

		logger.Info(ctx, "migrated", "id", id)
		st.Migrated++
	}

	logger.Info(ctx, "migration finished", "stats", st.String())
	return st, nil
}

func nonNil(a []contract.Address) []contract.Address {
	if a == nil {
		return []contract.Address{}
	}
	return a
}

func sortedIDs(ids map[int64]string) []int64 {
	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

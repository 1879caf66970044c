package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/dbx"
	"github.com/dmitrijs2005/sealmail/internal/server/models"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/repomanager"
)

// Publisher receives the events of committed writes.
type Publisher interface {
	Publish(ledger contract.Address, e contract.Event)
}

// Envelope is a participant's reference to the sealed message body.
type Envelope struct {
	StorageID  string
	WrappedKey []byte
}

// LedgerService is the mail ledger state machine. Every write runs in one
// transaction that holds the ledger row lock, so writes to one ledger are
// serialized and message ids are handed out without gaps.
type LedgerService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	publisher     Publisher
	defaultLedger contract.Address
	now           func() time.Time
}

func NewLedgerService(db *sql.DB, m repomanager.RepositoryManager, p Publisher, defaultLedger contract.Address) *LedgerService {
	return &LedgerService{
		db:            db,
		repomanager:   m,
		publisher:     p,
		defaultLedger: defaultLedger,
		now:           time.Now,
	}
}

// Resolve maps an empty ledger address to the default instance.
func (s *LedgerService) Resolve(l contract.Address) contract.Address {
	if l == "" {
		return s.defaultLedger
	}
	return l
}

// Deploy creates a ledger instance owned by owner.
func (s *LedgerService) Deploy(ctx context.Context, address, owner contract.Address, v contract.SchemaVersion) error {
	if address.IsZero() || owner.IsZero() {
		return fmt.Errorf("%w: ledger and owner must be set", common.ErrInvalidParams)
	}
	return s.repomanager.Ledgers(s.db).CreateLedger(ctx, &models.Ledger{
		Address:       string(address),
		Owner:         string(owner),
		SchemaVersion: int(v),
	})
}

// EnsureLedger deploys the instance unless it exists already.
func (s *LedgerService) EnsureLedger(ctx context.Context, address, owner contract.Address, v contract.SchemaVersion) error {
	err := s.Deploy(ctx, address, owner, v)
	if errors.Is(err, common.ErrAlreadyExists) {
		return nil
	}
	return err
}

func (s *LedgerService) getLedger(ctx context.Context, repo ledger.Repository, l contract.Address, lock bool) (*models.Ledger, error) {
	var (
		row *models.Ledger
		err error
	)
	if lock {
		row, err = repo.LockLedger(ctx, string(s.Resolve(l)))
	} else {
		row, err = repo.GetLedger(ctx, string(s.Resolve(l)))
	}
	if errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("ledger %s: %w", s.Resolve(l), common.ErrorNotFound)
	}
	return row, err
}

func (s *LedgerService) SchemaVersion(ctx context.Context, l contract.Address) (contract.SchemaVersion, error) {
	row, err := s.getLedger(ctx, s.repomanager.Ledgers(s.db), l, false)
	if err != nil {
		return 0, err
	}
	return contract.ParseSchemaVersion(int64(row.SchemaVersion))
}

// write runs fn in a transaction holding the ledger lock and publishes the
// receipt's events once the transaction has committed.
func (s *LedgerService) write(ctx context.Context, l contract.Address,
	fn func(ctx context.Context, repo ledger.Repository, row *models.Ledger, r *contract.Receipt) error) (*contract.Receipt, error) {

	receipt := &contract.Receipt{}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Ledgers(tx)
		row, err := s.getLedger(ctx, repo, l, true)
		if err != nil {
			return err
		}
		return fn(ctx, repo, row, receipt)
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		for _, e := range receipt.Events {
			s.publisher.Publish(s.Resolve(l), e)
		}
	}
	return receipt, nil
}

func (s *LedgerService) emit(ctx context.Context, repo ledger.Repository, row *models.Ledger, r *contract.Receipt,
	name string, id int64, address contract.Address) error {

	e := &models.Event{
		Ledger:    row.Address,
		Name:      name,
		MessageID: id,
		Address:   string(address),
		CreatedAt: s.now().Unix(),
	}
	if err := repo.AppendEvent(ctx, e); err != nil {
		return err
	}
	r.Events = append(r.Events, eventFromModel(e))
	return nil
}

func eventFromModel(e *models.Event) contract.Event {
	return contract.Event{Name: e.Name, Args: map[string]any{
		"id":        e.MessageID,
		"address":   e.Address,
		"seq":       e.Seq,
		"createdAt": e.CreatedAt,
	}}
}

// Send creates a message from caller with the sender's own envelope and
// returns its id. The receipt carries EmailCreated.
func (s *LedgerService) Send(ctx context.Context, l, caller contract.Address, env Envelope) (int64, *contract.Receipt, error) {
	var id int64
	receipt, err := s.write(ctx, l, func(ctx context.Context, repo ledger.Repository, row *models.Ledger, r *contract.Receipt) error {
		var err error
		id, err = repo.NextMessageID(ctx, row.Address)
		if err != nil {
			return err
		}
		if err := repo.InsertMessage(ctx, &models.Message{
			Ledger:    row.Address,
			ID:        id,
			Sender:    string(caller),
			CreatedAt: s.now().Unix(),
		}); err != nil {
			return err
		}
		if err := repo.AddParticipant(ctx, &models.Participant{
			Ledger:     row.Address,
			MessageID:  id,
			Address:    string(caller),
			Role:       string(contract.RoleFrom),
			StorageID:  env.StorageID,
			WrappedKey: env.WrappedKey,
			Read:       true,
		}); err != nil {
			return err
		}
		return s.emit(ctx, repo, row, r, contract.EventEmailCreated, id, caller)
	})
	if err != nil {
		return 0, nil, err
	}
	return id, receipt, nil
}

// AddRecipient grants address role on message id. Only the sender may add
// recipients.
func (s *LedgerService) AddRecipient(ctx context.Context, l, caller contract.Address, id int64,
	address contract.Address, env Envelope, role contract.Role) (*contract.Receipt, error) {

	if address.IsZero() {
		return nil, &common.InvalidRecipientError{Identity: string(address)}
	}
	if role != contract.RoleTo && role != contract.RoleCc {
		return nil, fmt.Errorf("%w: role %q", common.ErrInvalidParams, role)
	}

	return s.write(ctx, l, func(ctx context.Context, repo ledger.Repository, row *models.Ledger, r *contract.Receipt) error {
		if role == contract.RoleCc && !contract.SchemaVersion(row.SchemaVersion).SupportsCc() {
			return fmt.Errorf("%w: cc on v%d", common.ErrUnsupportedBySchema, row.SchemaVersion)
		}
		msg, err := repo.GetMessage(ctx, row.Address, id)
		if err != nil {
			return err
		}
		if msg.Sender != string(caller) {
			return common.ErrForbidden
		}
		if err := repo.AddParticipant(ctx, &models.Participant{
			Ledger:     row.Address,
			MessageID:  id,
			Address:    string(address),
			Role:       string(role),
			StorageID:  env.StorageID,
			WrappedKey: env.WrappedKey,
		}); err != nil {
			return err
		}
		return s.emit(ctx, repo, row, r, contract.EventRecipientAdded, id, address)
	})
}

// SetFlag updates flag on every record caller holds on message id.
func (s *LedgerService) SetFlag(ctx context.Context, l, caller contract.Address, id int64, flag ledger.Flag, value bool) error {
	_, err := s.write(ctx, l, func(ctx context.Context, repo ledger.Repository, row *models.Ledger, _ *contract.Receipt) error {
		if flag == ledger.FlagRead && !contract.SchemaVersion(row.SchemaVersion).TracksRead() {
			return fmt.Errorf("%w: read flag on v%d", common.ErrUnsupportedBySchema, row.SchemaVersion)
		}
		n, err := repo.SetFlag(ctx, row.Address, id, string(caller), flag, value)
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrorNotFound
		}
		return nil
	})
	return err
}

// GetByID returns message id as seen by caller. The ledger owner may read
// messages it holds no record on; it gets empty metadata.
func (s *LedgerService) GetByID(ctx context.Context, l, caller contract.Address, id int64) (contract.Email, error) {
	repo := s.repomanager.Ledgers(s.db)
	row, err := s.getLedger(ctx, repo, l, false)
	if err != nil {
		return contract.Email{}, err
	}

	msg, err := repo.GetMessage(ctx, row.Address, id)
	if err != nil {
		return contract.Email{}, err
	}

	mine, err := repo.ParticipantsOf(ctx, row.Address, id, string(caller))
	if err != nil {
		return contract.Email{}, err
	}

	var view *models.Participant
	switch {
	case len(mine) > 0:
		view = &mine[0]
	case row.Owner == string(caller):
		view = &models.Participant{}
	default:
		return contract.Email{}, common.ErrorNotFound
	}

	return s.buildEmail(ctx, repo, msg, view)
}

// List returns caller's messages in folder, one entry per message.
func (s *LedgerService) List(ctx context.Context, l, caller contract.Address, folder ledger.Folder) ([]contract.Email, error) {
	repo := s.repomanager.Ledgers(s.db)
	row, err := s.getLedger(ctx, repo, l, false)
	if err != nil {
		return nil, err
	}

	records, err := repo.ListParticipants(ctx, row.Address, string(caller), folder)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(records))
	out := make([]contract.Email, 0, len(records))
	for i := range records {
		p := &records[i]
		if _, ok := seen[p.MessageID]; ok {
			continue
		}
		seen[p.MessageID] = struct{}{}

		msg, err := repo.GetMessage(ctx, row.Address, p.MessageID)
		if err != nil {
			return nil, err
		}
		e, err := s.buildEmail(ctx, repo, msg, p)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *LedgerService) buildEmail(ctx context.Context, repo ledger.Repository, msg *models.Message, view *models.Participant) (contract.Email, error) {
	all, err := repo.Participants(ctx, msg.Ledger, msg.ID)
	if err != nil {
		return contract.Email{}, err
	}

	e := contract.Email{
		ID:         msg.ID,
		From:       contract.Address(msg.Sender),
		To:         []contract.Address{},
		Cc:         []contract.Address{},
		CreatedAt:  msg.CreatedAt,
		StorageID:  view.StorageID,
		WrappedKey: view.WrappedKey,
		Important:  view.Important,
		Deleted:    view.Deleted,
		Read:       view.Read,
	}
	for _, p := range all {
		switch contract.Role(p.Role) {
		case contract.RoleTo:
			e.To = append(e.To, contract.Address(p.Address))
		case contract.RoleCc:
			e.Cc = append(e.Cc, contract.Address(p.Address))
		}
	}
	return e, nil
}

// UserMetadata returns the record address holds in role on message id, or
// its first record when role is empty. Only the ledger owner may read
// other participants' records.
func (s *LedgerService) UserMetadata(ctx context.Context, l, caller contract.Address, id int64,
	address contract.Address, role contract.Role) (contract.Metadata, error) {

	repo := s.repomanager.Ledgers(s.db)
	row, err := s.getLedger(ctx, repo, l, false)
	if err != nil {
		return contract.Metadata{}, err
	}
	if row.Owner != string(caller) {
		return contract.Metadata{}, common.ErrForbidden
	}

	records, err := repo.ParticipantsOf(ctx, row.Address, id, string(address))
	if err != nil {
		return contract.Metadata{}, err
	}
	for _, p := range records {
		if role == "" || p.Role == string(role) {
			return contract.Metadata{
				StorageID:  p.StorageID,
				WrappedKey: p.WrappedKey,
				Important:  p.Important,
				Deleted:    p.Deleted,
				Read:       p.Read,
			}, nil
		}
	}
	return contract.Metadata{}, common.ErrorNotFound
}

// AddFromMigration inserts a complete message snapshot under its original
// id. Only the ledger owner may migrate; an existing id is rejected with
// common.ErrAlreadyExists.
func (s *LedgerService) AddFromMigration(ctx context.Context, l, caller contract.Address, rec *contract.MigrationRecord) (*contract.Receipt, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	return s.write(ctx, l, func(ctx context.Context, repo ledger.Repository, row *models.Ledger, r *contract.Receipt) error {
		if row.Owner != string(caller) {
			return common.ErrForbidden
		}
		if len(rec.Cc) > 0 && !contract.SchemaVersion(row.SchemaVersion).SupportsCc() {
			return fmt.Errorf("%w: cc on v%d", common.ErrUnsupportedBySchema, row.SchemaVersion)
		}

		if err := repo.InsertMessage(ctx, &models.Message{
			Ledger:    row.Address,
			ID:        rec.ID,
			Sender:    string(rec.From),
			CreatedAt: rec.CreatedAt,
		}); err != nil {
			return err
		}

		roles := rec.Roles()
		for i, user := range rec.Users {
			m := rec.Metadata[i]
			if err := repo.AddParticipant(ctx, &models.Participant{
				Ledger:     row.Address,
				MessageID:  rec.ID,
				Address:    string(user),
				Role:       string(roles[i]),
				StorageID:  m.StorageID,
				WrappedKey: m.WrappedKey,
				Read:       m.Read,
				Important:  m.Important,
				Deleted:    m.Deleted,
			}); err != nil {
				return err
			}
		}

		if err := repo.BumpLastID(ctx, row.Address, rec.ID); err != nil {
			return err
		}
		return s.emit(ctx, repo, row, r, contract.EventEmailMigrated, rec.ID, rec.From)
	})
}

// Events returns the historical events called name, oldest first.
func (s *LedgerService) Events(ctx context.Context, l contract.Address, name string) ([]contract.Event, error) {
	repo := s.repomanager.Ledgers(s.db)
	row, err := s.getLedger(ctx, repo, l, false)
	if err != nil {
		return nil, err
	}

	rows, err := repo.Events(ctx, row.Address, name)
	if err != nil {
		return nil, err
	}
	out := make([]contract.Event, 0, len(rows))
	for i := range rows {
		out = append(out, eventFromModel(&rows[i]))
	}
	return out, nil
}

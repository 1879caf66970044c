package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/dbx"
	"github.com/dmitrijs2005/sealmail/internal/server/models"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

type fakeUsersRepo struct {
	createErr error

	getOut *models.User
	getErr error

	created []*models.User
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, u)
	return nil
}

func (f *fakeUsersRepo) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeUsersRepo) GetByAddress(ctx context.Context, address string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

type fakeRefreshRepo struct {
	consumeOut *models.RefreshToken
	consumeErr error
	consumed   []string

	saveErr error
	saved   []models.RefreshToken

	purged int64
}

func (f *fakeRefreshRepo) Save(ctx context.Context, t models.RefreshToken) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, t)
	return nil
}

func (f *fakeRefreshRepo) Consume(ctx context.Context, token string) (*models.RefreshToken, error) {
	f.consumed = append(f.consumed, token)
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	return f.consumeOut, nil
}

func (f *fakeRefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return f.purged, nil
}

// memLedgerRepo is an in-memory ledger.Repository with the same uniqueness
// rules as the PostgreSQL schema. Writes made inside a failed transaction
// are not rolled back.
type memLedgerRepo struct {
	mu       sync.Mutex
	ledgers  map[string]*models.Ledger
	messages map[string]map[int64]models.Message
	parts    []models.Participant
	events   []models.Event

	locks int
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{
		ledgers:  make(map[string]*models.Ledger),
		messages: make(map[string]map[int64]models.Message),
	}
}

func (r *memLedgerRepo) CreateLedger(ctx context.Context, l *models.Ledger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ledgers[l.Address]; ok {
		return common.ErrAlreadyExists
	}
	cp := *l
	r.ledgers[l.Address] = &cp
	r.messages[l.Address] = make(map[int64]models.Message)
	return nil
}

func (r *memLedgerRepo) GetLedger(ctx context.Context, address string) (*models.Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[address]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *memLedgerRepo) LockLedger(ctx context.Context, address string) (*models.Ledger, error) {
	r.mu.Lock()
	r.locks++
	r.mu.Unlock()
	return r.GetLedger(ctx, address)
}

func (r *memLedgerRepo) NextMessageID(ctx context.Context, ledgerAddr string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[ledgerAddr]
	if !ok {
		return 0, common.ErrorNotFound
	}
	l.LastID++
	return l.LastID, nil
}

func (r *memLedgerRepo) BumpLastID(ctx context.Context, ledgerAddr string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l := r.ledgers[ledgerAddr]; l != nil && l.LastID < id {
		l.LastID = id
	}
	return nil
}

func (r *memLedgerRepo) InsertMessage(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[m.Ledger][m.ID]; ok {
		return common.ErrAlreadyExists
	}
	r.messages[m.Ledger][m.ID] = *m
	return nil
}

func (r *memLedgerRepo) GetMessage(ctx context.Context, ledgerAddr string, id int64) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[ledgerAddr][id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &m, nil
}

func (r *memLedgerRepo) AddParticipant(ctx context.Context, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.parts {
		if q.Ledger == p.Ledger && q.MessageID == p.MessageID && q.Address == p.Address && q.Role == p.Role {
			return &common.DuplicateRecipientError{Address: p.Address, Role: p.Role}
		}
	}
	r.parts = append(r.parts, *p)
	return nil
}

func (r *memLedgerRepo) filter(keep func(p models.Participant) bool) []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Participant
	for _, p := range r.parts {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (r *memLedgerRepo) Participants(ctx context.Context, ledgerAddr string, id int64) ([]models.Participant, error) {
	return r.filter(func(p models.Participant) bool {
		return p.Ledger == ledgerAddr && p.MessageID == id
	}), nil
}

func (r *memLedgerRepo) ParticipantsOf(ctx context.Context, ledgerAddr string, id int64, address string) ([]models.Participant, error) {
	return r.filter(func(p models.Participant) bool {
		return p.Ledger == ledgerAddr && p.MessageID == id && p.Address == address
	}), nil
}

func (r *memLedgerRepo) ListParticipants(ctx context.Context, ledgerAddr string, address string, folder ledger.Folder) ([]models.Participant, error) {
	out := r.filter(func(p models.Participant) bool {
		if p.Ledger != ledgerAddr || p.Address != address {
			return false
		}
		switch folder {
		case ledger.FolderFrom:
			return p.Role == "from"
		case ledger.FolderTo:
			return p.Role == "to" && !p.Deleted
		case ledger.FolderCc:
			return p.Role == "cc" && !p.Deleted
		case ledger.FolderImportant:
			return p.Important && !p.Deleted
		case ledger.FolderDeleted:
			return p.Deleted
		}
		return false
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	return out, nil
}

func (r *memLedgerRepo) SetFlag(ctx context.Context, ledgerAddr string, id int64, address string, flag ledger.Flag, value bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.parts {
		p := &r.parts[i]
		if p.Ledger != ledgerAddr || p.MessageID != id || p.Address != address {
			continue
		}
		switch flag {
		case ledger.FlagRead:
			p.Read = value
		case ledger.FlagImportant:
			p.Important = value
		case ledger.FlagDeleted:
			p.Deleted = value
		}
		n++
	}
	return n, nil
}

func (r *memLedgerRepo) AppendEvent(ctx context.Context, e *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Seq = int64(len(r.events) + 1)
	r.events = append(r.events, *e)
	return nil
}

func (r *memLedgerRepo) Events(ctx context.Context, ledgerAddr string, name string) ([]models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, e := range r.events {
		if e.Ledger == ledgerAddr && (name == "" || e.Name == name) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	l *memLedgerRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error       { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository { return m.r }
func (m *fakeRepoManager) Ledgers(db dbx.DBTX) ledger.Repository              { return m.l }

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/dbx"
	"github.com/dmitrijs2005/sealmail/internal/server/models"
)

const participantsPK = "participants_pkey"

var flagColumns = map[Flag]string{
	FlagRead:      "read",
	FlagImportant: "important",
	FlagDeleted:   "deleted",
}

var folderClauses = map[Folder]string{
	FolderFrom:      "role = 'from'",
	FolderTo:        "role = 'to' AND NOT deleted",
	FolderCc:        "role = 'cc' AND NOT deleted",
	FolderImportant: "important AND NOT deleted",
	FolderDeleted:   "deleted",
}

const participantColumns = `ledger, message_id, address, role, storage_id, wrapped_key, read, important, deleted`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateLedger(ctx context.Context, l *models.Ledger) error {
	query :=
		`INSERT INTO ledgers (address, owner, schema_version, last_id)
		 VALUES ($1, $2, $3, $4)
		 `
	if _, err := r.db.ExecContext(ctx, query, l.Address, l.Owner, l.SchemaVersion, l.LastID); err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetLedger(ctx context.Context, address string) (*models.Ledger, error) {
	query :=
		`SELECT address, owner, schema_version, last_id FROM ledgers
		 WHERE address = $1
		 `
	return r.scanLedger(ctx, query, address)
}

func (r *PostgresRepository) LockLedger(ctx context.Context, address string) (*models.Ledger, error) {
	query :=
		`SELECT address, owner, schema_version, last_id FROM ledgers
		 WHERE address = $1
		 FOR UPDATE
		 `
	return r.scanLedger(ctx, query, address)
}

func (r *PostgresRepository) scanLedger(ctx context.Context, query, address string) (*models.Ledger, error) {
	l := &models.Ledger{}
	err := r.db.QueryRowContext(ctx, query, address).Scan(&l.Address, &l.Owner, &l.SchemaVersion, &l.LastID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return l, nil
}

func (r *PostgresRepository) NextMessageID(ctx context.Context, ledger string) (int64, error) {
	query :=
		`UPDATE ledgers SET last_id = last_id + 1
		 WHERE address = $1
		 RETURNING last_id
		 `

	var id int64
	err := r.db.QueryRowContext(ctx, query, ledger).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) BumpLastID(ctx context.Context, ledger string, id int64) error {
	query :=
		`UPDATE ledgers SET last_id = GREATEST(last_id, $2)
		 WHERE address = $1
		 `
	if _, err := r.db.ExecContext(ctx, query, ledger, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertMessage(ctx context.Context, m *models.Message) error {
	query :=
		`INSERT INTO messages (ledger, id, sender, created_at)
		 VALUES ($1, $2, $3, $4)
		 `
	if _, err := r.db.ExecContext(ctx, query, m.Ledger, m.ID, m.Sender, m.CreatedAt); err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetMessage(ctx context.Context, ledger string, id int64) (*models.Message, error) {
	query :=
		`SELECT ledger, id, sender, created_at FROM messages
		 WHERE ledger = $1 AND id = $2
		 `
	m := &models.Message{}
	err := r.db.QueryRowContext(ctx, query, ledger, id).Scan(&m.Ledger, &m.ID, &m.Sender, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) AddParticipant(ctx context.Context, p *models.Participant) error {
	query :=
		`INSERT INTO participants (` + participantColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 `
	_, err := r.db.ExecContext(ctx, query,
		p.Ledger, p.MessageID, p.Address, p.Role, p.StorageID, p.WrappedKey, p.Read, p.Important, p.Deleted)
	if err != nil {
		if dbx.IsUniqueViolation(err, participantsPK) {
			return &common.DuplicateRecipientError{Address: p.Address, Role: p.Role}
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Participants(ctx context.Context, ledger string, id int64) ([]models.Participant, error) {
	query :=
		`SELECT ` + participantColumns + ` FROM participants
		 WHERE ledger = $1 AND message_id = $2
		 ORDER BY position
		 `
	return r.queryParticipants(ctx, query, ledger, id)
}

func (r *PostgresRepository) ParticipantsOf(ctx context.Context, ledger string, id int64, address string) ([]models.Participant, error) {
	query :=
		`SELECT ` + participantColumns + ` FROM participants
		 WHERE ledger = $1 AND message_id = $2 AND address = $3
		 ORDER BY position
		 `
	return r.queryParticipants(ctx, query, ledger, id, address)
}

func (r *PostgresRepository) ListParticipants(ctx context.Context, ledger string, address string, folder Folder) ([]models.Participant, error) {
	clause, ok := folderClauses[folder]
	if !ok {
		return nil, fmt.Errorf("unknown folder %d", folder)
	}
	query :=
		`SELECT ` + participantColumns + ` FROM participants
		 WHERE ledger = $1 AND address = $2 AND ` + clause + `
		 ORDER BY message_id, position
		 `
	return r.queryParticipants(ctx, query, ledger, address)
}

func (r *PostgresRepository) queryParticipants(ctx context.Context, query string, args ...any) ([]models.Participant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.Ledger, &p.MessageID, &p.Address, &p.Role,
			&p.StorageID, &p.WrappedKey, &p.Read, &p.Important, &p.Deleted); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) SetFlag(ctx context.Context, ledger string, id int64, address string, flag Flag, value bool) (int64, error) {
	column, ok := flagColumns[flag]
	if !ok {
		return 0, fmt.Errorf("unknown flag %d", flag)
	}
	query :=
		`UPDATE participants SET ` + column + ` = $4
		 WHERE ledger = $1 AND message_id = $2 AND address = $3
		 `
	res, err := r.db.ExecContext(ctx, query, ledger, id, address, value)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) AppendEvent(ctx context.Context, e *models.Event) error {
	query :=
		`INSERT INTO events (ledger, name, message_id, address, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING seq
		 `
	err := r.db.QueryRowContext(ctx, query, e.Ledger, e.Name, e.MessageID, e.Address, e.CreatedAt).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Events(ctx context.Context, ledger string, name string) ([]models.Event, error) {
	query :=
		`SELECT seq, ledger, name, message_id, address, created_at FROM events
		 WHERE ledger = $1 AND ($2::text = '' OR name = $2)
		 ORDER BY seq
		 `
	rows, err := r.db.QueryContext(ctx, query, ledger, name)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.Seq, &e.Ledger, &e.Name, &e.MessageID, &e.Address, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Package session stores what the CLI remembers about the last successful
// online login, so the password can later be checked without the server.
// The local database holds at most one session.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/dbx"
)

// Session is the remembered login.
type Session struct {
	Handle   string
	Address  contract.Address
	Salt     []byte
	Verifier []byte
}

type Repository interface {
	// Save replaces the stored session with s.
	Save(ctx context.Context, s Session) error
	// Load returns the stored session, or nil when there is none.
	Load(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, s Session) error {
	if s.Handle == "" || len(s.Salt) == 0 || len(s.Verifier) == 0 {
		return errors.New("incomplete session")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session (slot, handle, address, salt, verifier, saved_at)
		VALUES (1, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET
			handle = excluded.handle,
			address = excluded.address,
			salt = excluded.salt,
			verifier = excluded.verifier,
			saved_at = excluded.saved_at
	`, s.Handle, string(s.Address), s.Salt, s.Verifier)
	if err != nil {
		return fmt.Errorf("failed to save session for %s: %w", s.Handle, err)
	}
	return nil
}

func (r *SQLiteRepository) Load(ctx context.Context) (*Session, error) {
	var (
		s       Session
		address string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT handle, address, salt, verifier FROM session WHERE slot = 1`,
	).Scan(&s.Handle, &address, &s.Salt, &s.Verifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	s.Address = contract.Address(address)
	return &s, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/dbx"
	"github.com/dmitrijs2005/sealmail/internal/server/models"
)

const userColumns = `address, handle, public_key, salt, verifier, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) error {
	const query = `INSERT INTO users (address, handle, public_key, salt, verifier)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

	row := r.db.QueryRowContext(ctx, query, user.Address, user.Handle, user.PublicKey, user.Salt, user.Verifier)
	switch err := row.Scan(&user.CreatedAt); {
	case err == nil:
		return nil
	case dbx.IsUniqueViolation(err, ""):
		return common.ErrAlreadyExists
	default:
		return fmt.Errorf("register %q: %w", user.Handle, err)
	}
}

func (r *PostgresRepository) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	return r.lookup(ctx, "handle", handle)
}

func (r *PostgresRepository) GetByAddress(ctx context.Context, address string) (*models.User, error) {
	return r.lookup(ctx, "address", address)
}

// lookup loads the user whose column equals value. column is never user input.
func (r *PostgresRepository) lookup(ctx context.Context, column, value string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	var u models.User
	err := r.db.QueryRowContext(ctx, query, value).
		Scan(&u.Address, &u.Handle, &u.PublicKey, &u.Salt, &u.Verifier, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by %s: %w", column, err)
	}
	return &u, nil
}

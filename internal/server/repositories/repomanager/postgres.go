// Package repomanager hands out the PostgreSQL repositories bound to a
// connection or a transaction, and migrates the schema.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/sealmail/internal/dbx"
	"github.com/dmitrijs2005/sealmail/internal/server/migrations"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/users"
)

type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

// Ledgers binds the ledger repository to db. Pass the transaction when the
// calls must see the ledger row lock.
func (m *PostgresRepositoryManager) Ledgers(db dbx.DBTX) ledger.Repository {
	return ledger.NewPostgresRepository(db)
}

// upMigrations applies every pending embedded migration. Replaced in tests.
var upMigrations = func(ctx context.Context, db *sql.DB) ([]*goose.MigrationResult, error) {
	p, err := goose.NewProvider(goose.DialectPostgres, db, migrations.Migrations)
	if err != nil {
		return nil, err
	}
	return p.Up(ctx)
}

// RunMigrations brings the ledger schema up to date.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := upMigrations(ctx, db); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	return nil
}

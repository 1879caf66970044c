package client

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/sealmail/internal/client/migrations"
	"github.com/dmitrijs2005/sealmail/internal/filex"
)

// RunMigrations brings the local schema up to date and returns the number
// of migrations it applied.
func RunMigrations(ctx context.Context, db *sql.DB) (int, error) {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return 0, fmt.Errorf("failed to load local migrations: %w", err)
	}

	applied, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to migrate local database: %w", err)
	}
	return len(applied), nil
}

// InitDatabase opens (creating if needed) the local SQLite database at path
// and migrates it. It holds the session and the blob cache.
func InitDatabase(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := filex.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

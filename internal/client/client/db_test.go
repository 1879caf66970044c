package client

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func tables(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestInitDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "sealmail.db")

	db, err := InitDatabase(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Subset(t, tables(t, db), []string{"blobs", "goose_db_version", "session"})

	_, err = db.ExecContext(ctx,
		`INSERT INTO session (slot, handle, address, salt, verifier) VALUES (1, 'alice', '0xa1', x'01', x'02')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO session (slot, handle, address, salt, verifier) VALUES (2, 'bob', '0xb2', x'01', x'02')`)
	assert.Error(t, err, "only one session row")
}

func TestRunMigrations_SecondRunAppliesNothing(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "sealmail.db"))
	require.NoError(t, err)
	defer db.Close()

	n, err := RunMigrations(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = RunMigrations(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInitDatabase_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sealmail.db")

	db, err := InitDatabase(ctx, path)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO blobs (id, data, size) VALUES ('b1', x'cafe', 2)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDatabase(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	var size int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT size FROM blobs WHERE id = 'b1'`).Scan(&size))
	assert.Equal(t, 2, size)
}

func TestInitDatabase_BadPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := InitDatabase(context.Background(), filepath.Join(blocker, "sealmail.db"))
	assert.Error(t, err)
}

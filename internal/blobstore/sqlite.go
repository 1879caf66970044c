package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/dbx"
)

// SQLiteStore keeps blobs in the local SQLite database created by the
// client migrations.
type SQLiteStore struct {
	db dbx.DBTX
}

func NewSQLiteStore(db dbx.DBTX) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Put(ctx context.Context, data []byte) (string, error) {
	id := ContentID(data)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (id, data, size) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`, id, data, len(data))
	if err != nil {
		return "", fmt.Errorf("failed to put blob %s: %w", id, err)
	}
	return id, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to get blob %s: %w", id, err)
	}
	return data, nil
}

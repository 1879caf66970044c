package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

const insertEmail = `INSERT INTO emails`

func TestWithTx(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		setup   func(m sqlmock.Sqlmock)
		fnErr   error
		wantErr error
	}{
		{
			name: "commit",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectExec(insertEmail).WillReturnResult(sqlmock.NewResult(1, 1))
				m.ExpectCommit()
			},
		},
		{
			name: "fn error rolls back",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectExec(insertEmail).WillReturnResult(sqlmock.NewResult(1, 1))
				m.ExpectRollback()
			},
			fnErr:   errBoom,
			wantErr: errBoom,
		},
		{
			name: "commit error is returned",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectExec(insertEmail).WillReturnResult(sqlmock.NewResult(1, 1))
				m.ExpectCommit().WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
		{
			name: "begin error",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectBegin().WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			tt.setup(mock)

			err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
				if _, err := tx.ExecContext(ctx, insertEmail+" (id) VALUES ($1)", 1); err != nil {
					return err
				}
				return tt.fnErr
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWithTx_PanicRollsBackAndRepanics(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "kaput", func() {
		_ = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error {
			panic("kaput")
		})
	})
}

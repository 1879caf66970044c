package ledger

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	ledgerAddr = "0x00000000000000000000000000000000000000ee"
	alice      = "0x00000000000000000000000000000000000000a1"
	bob        = "0x00000000000000000000000000000000000000b2"
)

var pCols = []string{"ledger", "message_id", "address", "role", "storage_id", "wrapped_key", "read", "important", "deleted"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreateLedger(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+ledgers\s*\(address,\s*owner,\s*schema_version,\s*last_id\)\s*VALUES`

	mock.ExpectExec(q).
		WithArgs(ledgerAddr, alice, 2, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs(ledgerAddr, alice, 2, int64(0)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ledgers_pkey"})

	l := &models.Ledger{Address: ledgerAddr, Owner: alice, SchemaVersion: 2}
	if err := repo.CreateLedger(context.Background(), l); err != nil {
		t.Fatalf("CreateLedger error: %v", err)
	}
	if err := repo.CreateLedger(context.Background(), l); !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLockLedger(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+address,\s*owner,\s*schema_version,\s*last_id\s+FROM\s+ledgers\s+WHERE\s+address\s*=\s*\$1\s+FOR\s+UPDATE\s*$`

	mock.ExpectQuery(q).
		WithArgs(ledgerAddr).
		WillReturnRows(sqlmock.NewRows([]string{"address", "owner", "schema_version", "last_id"}).
			AddRow(ledgerAddr, alice, 1, int64(7)))
	mock.ExpectQuery(q).
		WithArgs("0xmissing").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.LockLedger(context.Background(), ledgerAddr)
	if err != nil {
		t.Fatalf("LockLedger error: %v", err)
	}
	want := &models.Ledger{Address: ledgerAddr, Owner: alice, SchemaVersion: 1, LastID: 7}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ledger mismatch (-want +got):\n%s", diff)
	}

	if _, err := repo.LockLedger(context.Background(), "0xmissing"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestNextMessageID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+ledgers\s+SET\s+last_id\s*=\s*last_id\s*\+\s*1\s+WHERE\s+address\s*=\s*\$1\s+RETURNING\s+last_id\s*$`

	mock.ExpectQuery(q).
		WithArgs(ledgerAddr).
		WillReturnRows(sqlmock.NewRows([]string{"last_id"}).AddRow(int64(8)))
	mock.ExpectQuery(q).
		WithArgs(ledgerAddr).
		WillReturnError(errors.New("conn reset"))

	id, err := repo.NextMessageID(context.Background(), ledgerAddr)
	if err != nil || id != 8 {
		t.Fatalf("want 8, got %d (%v)", id, err)
	}

	_, err = repo.NextMessageID(context.Background(), ledgerAddr)
	if err == nil || !regexp.MustCompile(`db error: .*conn reset`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestInsertMessage_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+messages\s*\(ledger,\s*id,\s*sender,\s*created_at\)`

	mock.ExpectExec(q).
		WithArgs(ledgerAddr, int64(3), alice, int64(1700000000)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "messages_pkey"})

	err := repo.InsertMessage(context.Background(), &models.Message{Ledger: ledgerAddr, ID: 3, Sender: alice, CreatedAt: 1700000000})
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
}

func TestAddParticipant(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+participants\s*\(ledger,\s*message_id,\s*address,\s*role,.*VALUES\s*\(\$1,.*\$9\)\s*$`
	p := &models.Participant{Ledger: ledgerAddr, MessageID: 1, Address: bob, Role: "to", StorageID: "s", WrappedKey: []byte("k")}

	mock.ExpectExec(q).
		WithArgs(ledgerAddr, int64(1), bob, "to", "s", []byte("k"), false, false, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs(ledgerAddr, int64(1), bob, "to", "s", []byte("k"), false, false, false).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "participants_pkey"})
	mock.ExpectExec(q).
		WithArgs(ledgerAddr, int64(1), bob, "to", "s", []byte("k"), false, false, false).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "participants_ledger_message_id_fkey"})

	if err := repo.AddParticipant(context.Background(), p); err != nil {
		t.Fatalf("AddParticipant error: %v", err)
	}

	err := repo.AddParticipant(context.Background(), p)
	var dup *common.DuplicateRecipientError
	if !errors.As(err, &dup) || dup.Role != "to" || err.Error() != "already in email (to)" {
		t.Fatalf("want duplicate recipient error, got %v", err)
	}

	err = repo.AddParticipant(context.Background(), p)
	if err == nil || errors.Is(err, common.ErrDuplicateRecipient) {
		t.Fatalf("want plain db error, got %v", err)
	}
}

func TestListParticipants(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+ledger,.*FROM\s+participants\s+WHERE\s+ledger\s*=\s*\$1\s+AND\s+address\s*=\s*\$2\s+AND\s+role\s*=\s*'to'\s+AND\s+NOT\s+deleted\s+ORDER\s+BY\s+message_id,\s*position\s*$`

	mock.ExpectQuery(q).
		WithArgs(ledgerAddr, bob).
		WillReturnRows(sqlmock.NewRows(pCols).
			AddRow(ledgerAddr, int64(1), bob, "to", "s1", []byte("k1"), false, false, false).
			AddRow(ledgerAddr, int64(2), bob, "to", "s2", []byte("k2"), true, true, false))

	got, err := repo.ListParticipants(context.Background(), ledgerAddr, bob, FolderTo)
	if err != nil {
		t.Fatalf("ListParticipants error: %v", err)
	}
	want := []models.Participant{
		{Ledger: ledgerAddr, MessageID: 1, Address: bob, Role: "to", StorageID: "s1", WrappedKey: []byte("k1")},
		{Ledger: ledgerAddr, MessageID: 2, Address: bob, Role: "to", StorageID: "s2", WrappedKey: []byte("k2"), Read: true, Important: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("participants mismatch (-want +got):\n%s", diff)
	}

	if _, err := repo.ListParticipants(context.Background(), ledgerAddr, bob, Folder(99)); err == nil {
		t.Fatal("expected error for unknown folder")
	}
}

func TestSetFlag(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+participants\s+SET\s+important\s*=\s*\$4\s+WHERE\s+ledger\s*=\s*\$1\s+AND\s+message_id\s*=\s*\$2\s+AND\s+address\s*=\s*\$3\s*$`

	mock.ExpectExec(q).
		WithArgs(ledgerAddr, int64(1), bob, true).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.SetFlag(context.Background(), ledgerAddr, 1, bob, FlagImportant, true)
	if err != nil || n != 2 {
		t.Fatalf("want 2 rows, got %d (%v)", n, err)
	}

	if _, err := repo.SetFlag(context.Background(), ledgerAddr, 1, bob, Flag(42), true); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestEvents(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ins := `(?s)^INSERT\s+INTO\s+events\s*\(ledger,\s*name,\s*message_id,\s*address,\s*created_at\).*RETURNING\s+seq\s*$`
	sel := `(?s)^SELECT\s+seq,\s*ledger,\s*name,\s*message_id,\s*address,\s*created_at\s+FROM\s+events\s+WHERE\s+ledger\s*=\s*\$1`

	mock.ExpectQuery(ins).
		WithArgs(ledgerAddr, "EmailCreated", int64(1), alice, int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(11)))
	mock.ExpectQuery(sel).
		WithArgs(ledgerAddr, "EmailCreated").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "ledger", "name", "message_id", "address", "created_at"}).
			AddRow(int64(11), ledgerAddr, "EmailCreated", int64(1), alice, int64(100)))

	e := &models.Event{Ledger: ledgerAddr, Name: "EmailCreated", MessageID: 1, Address: alice, CreatedAt: 100}
	if err := repo.AppendEvent(context.Background(), e); err != nil {
		t.Fatalf("AppendEvent error: %v", err)
	}
	if e.Seq != 11 {
		t.Fatalf("seq not scanned: %+v", e)
	}

	got, err := repo.Events(context.Background(), ledgerAddr, "EmailCreated")
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if diff := cmp.Diff([]models.Event{*e}, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

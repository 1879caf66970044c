// Package ledger declares and implements the persistence of mail ledgers:
// ledger instances, messages, participant records and the event log.
package ledger

import (
	"context"

	"github.com/dmitrijs2005/sealmail/internal/server/models"
)

// Folder selects which participant records a listing returns.
type Folder int

const (
	FolderFrom Folder = iota
	FolderTo
	FolderCc
	FolderImportant
	FolderDeleted
)

// Flag names a mutable participant flag.
type Flag int

const (
	FlagRead Flag = iota
	FlagImportant
	FlagDeleted
)

type Repository interface {
	// CreateLedger returns common.ErrAlreadyExists if the address is taken.
	CreateLedger(ctx context.Context, l *models.Ledger) error
	GetLedger(ctx context.Context, address string) (*models.Ledger, error)
	// LockLedger reads the ledger row and locks it until the surrounding
	// transaction ends.
	LockLedger(ctx context.Context, address string) (*models.Ledger, error)
	NextMessageID(ctx context.Context, ledger string) (int64, error)
	// BumpLastID raises last_id to at least id.
	BumpLastID(ctx context.Context, ledger string, id int64) error

	// InsertMessage returns common.ErrAlreadyExists if the id is taken.
	InsertMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, ledger string, id int64) (*models.Message, error)

	// AddParticipant returns a *common.DuplicateRecipientError if the
	// (message, address, role) record exists.
	AddParticipant(ctx context.Context, p *models.Participant) error
	// Participants returns every record of a message in insertion order.
	Participants(ctx context.Context, ledger string, id int64) ([]models.Participant, error)
	// ParticipantsOf returns the records address holds on a message.
	ParticipantsOf(ctx context.Context, ledger string, id int64, address string) ([]models.Participant, error)
	// ListParticipants returns the records of address in folder, ordered by
	// message id then insertion order.
	ListParticipants(ctx context.Context, ledger string, address string, folder Folder) ([]models.Participant, error)
	// SetFlag updates flag on every record address holds on a message and
	// returns the number of records touched.
	SetFlag(ctx context.Context, ledger string, id int64, address string, flag Flag, value bool) (int64, error)

	AppendEvent(ctx context.Context, e *models.Event) error
	// Events returns the events called name in emission order. An empty
	// name returns all events.
	Events(ctx context.Context, ledger string, name string) ([]models.Event, error)
}

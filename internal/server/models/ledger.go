// Package models defines server-side data models persisted in the database.
package models

// Ledger is one mail ledger instance. LastID is the last message id handed
// out; ids are never reused.
type Ledger struct {
	Address       string
	Owner         string
	SchemaVersion int
	LastID        int64
}

// Message holds the fields shared by all participants.
type Message struct {
	Ledger    string
	ID        int64
	Sender    string
	CreatedAt int64
}

// Participant is one (address, role) record on a message.
type Participant struct {
	Ledger     string
	MessageID  int64
	Address    string
	Role       string
	StorageID  string
	WrappedKey []byte
	Read       bool
	Important  bool
	Deleted    bool
}

// Event is an entry of a ledger's append-only event log.
type Event struct {
	Seq       int64
	Ledger    string
	Name      string
	MessageID int64
	Address   string
	CreatedAt int64
}

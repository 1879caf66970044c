package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/sealmail/internal/attachment"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
	"github.com/dmitrijs2005/sealmail/internal/envelope"
)

// Attachment is a stored file together with its content key. It only
// travels inside the sealed payload.
type Attachment struct {
	attachment.StoredFile
	Key string `json:"key"`
}

// Payload is the plaintext sealed into every envelope of a message.
type Payload struct {
	Subject     string       `json:"subject"`
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments"`
}

// Folder is a mailbox view.
type Folder string

const (
	FolderInbox     Folder = "inbox"
	FolderSent      Folder = "sent"
	FolderCc        Folder = "cc"
	FolderImportant Folder = "important"
	FolderTrash     Folder = "trash"
)

var folderMethods = map[Folder]string{
	FolderInbox:     contract.MethodGetAllByTo,
	FolderSent:      contract.MethodGetAllByFrom,
	FolderCc:        contract.MethodGetAllByCc,
	FolderImportant: contract.MethodGetImportant,
	FolderTrash:     contract.MethodGetDeleted,
}

func ParseFolder(s string) (Folder, error) {
	f := Folder(s)
	if _, ok := folderMethods[f]; !ok {
		return "", fmt.Errorf("unknown folder %q", s)
	}
	return f, nil
}

// List returns the messages of folder f, newest first.
func (s *Service) List(ctx context.Context, f Folder) ([]contract.Email, error) {
	method, ok := folderMethods[f]
	if !ok {
		return nil, fmt.Errorf("unknown folder %q", f)
	}

	v, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.ledger.Call(ctx, contract.Call{Contract: contract.ContractMail, Method: method})
	if err != nil {
		return nil, err
	}

	var rows []any
	if res != nil {
		var ok bool
		if rows, ok = res.([]any); !ok {
			return nil, fmt.Errorf("%w: %s returned %T", ErrUnexpectedResult, method, res)
		}
	}

	emails := make([]contract.Email, 0, len(rows))
	for _, row := range rows {
		tuple, ok := row.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s row is %T", ErrUnexpectedResult, method, row)
		}
		e, err := contract.DecodeEmail(v, tuple)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}

	sort.SliceStable(emails, func(i, j int) bool {
		if emails[i].CreatedAt != emails[j].CreatedAt {
			return emails[i].CreatedAt > emails[j].CreatedAt
		}
		return emails[i].ID > emails[j].ID
	})
	return emails, nil
}

// Message is an opened message.
type Message struct {
	contract.Email
	Payload

	FromHandle string
	ToHandles  []string
	CcHandles  []string
}

// Get returns message id as the caller sees it, without opening it.
func (s *Service) Get(ctx context.Context, id int64) (contract.Email, error) {
	v, err := s.SchemaVersion(ctx)
	if err != nil {
		return contract.Email{}, err
	}

	res, err := s.ledger.Call(ctx, contract.Call{
		Contract: contract.ContractMail,
		Method:   contract.MethodGetEmailByID,
		Params:   contract.Params{id},
	})
	if err != nil {
		return contract.Email{}, err
	}

	tuple, ok := res.([]any)
	if !ok {
		return contract.Email{}, fmt.Errorf("%w: getEmailById returned %T", ErrUnexpectedResult, res)
	}
	return contract.DecodeEmail(v, tuple)
}

// Open fetches and decrypts message id. A message the caller has no
// envelope on is common.ErrorNotFound.
func (s *Service) Open(ctx context.Context, id int64) (*Message, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.StorageID == "" {
		return nil, fmt.Errorf("message %d: %w", id, common.ErrorNotFound)
	}

	plaintext, err := s.codec.Open(ctx, envelope.Envelope{StorageID: e.StorageID, WrappedKey: e.WrappedKey}, s.me.Private)
	if err != nil {
		return nil, fmt.Errorf("message %d: %w", id, err)
	}
	defer common.WipeByteArray(plaintext)

	m := &Message{Email: e}
	if err := json.Unmarshal(plaintext, &m.Payload); err != nil {
		return nil, fmt.Errorf("message %d: %w: %v", id, common.ErrDecryptionFailed, err)
	}

	m.FromHandle = s.handleOf(ctx, e.From)
	for _, a := range e.To {
		m.ToHandles = append(m.ToHandles, s.handleOf(ctx, a))
	}
	for _, a := range e.Cc {
		m.CcHandles = append(m.CcHandles, s.handleOf(ctx, a))
	}
	return m, nil
}

// handleOf returns the handle registered for a, or a itself.
func (s *Service) handleOf(ctx context.Context, a contract.Address) string {
	h, err := s.resolver.ReverseResolve(ctx, a)
	if err != nil || h == "" {
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "reverse resolve failed", "address", a, "error", err)
		}
		return string(a)
	}
	return h
}

// AttachmentData decrypts attachment i of m.
func (s *Service) AttachmentData(ctx context.Context, m *Message, i int) ([]byte, error) {
	if i < 0 || i >= len(m.Attachments) {
		return nil, fmt.Errorf("attachment %d: %w", i, common.ErrorNotFound)
	}
	a := m.Attachments[i]

	key, err := base64.StdEncoding.DecodeString(a.Key)
	if err != nil || len(key) != cryptox.KeySize {
		return nil, fmt.Errorf("attachment %s: %w: bad key", a.Name, common.ErrDecryptionFailed)
	}
	defer common.WipeByteArray(key)

	return s.chunker.Retrieve(ctx, &a.StoredFile, key)
}

func (s *Service) setFlag(ctx context.Context, method string, id int64, value bool) error {
	_, err := s.ledger.Send(ctx, contract.Call{
		Contract: contract.ContractMail,
		Method:   method,
		Params:   contract.Params{id, value},
	})
	return err
}

func (s *Service) MarkRead(ctx context.Context, id int64, read bool) error {
	return s.setFlag(ctx, contract.MethodMarkAsRead, id, read)
}

func (s *Service) MarkImportant(ctx context.Context, id int64, important bool) error {
	return s.setFlag(ctx, contract.MethodMarkAsImportant, id, important)
}

// Delete moves message id to the trash.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.setFlag(ctx, contract.MethodDeleteMessage, id, true)
}

// Restore takes message id out of the trash.
func (s *Service) Restore(ctx context.Context, id int64) error {
	return s.setFlag(ctx, contract.MethodDeleteMessage, id, false)
}

// Package mail is the client side of SealMail: it composes, seals and sends
// messages, and lists, opens and flags the messages of the logged-in user.
//
// A message is sealed once per participant (the sender included) with the
// envelope codec; the ledger only ever sees storage ids and wrapped keys.
package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/sealmail/internal/attachment"
	"github.com/dmitrijs2005/sealmail/internal/blobstore"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
	"github.com/dmitrijs2005/sealmail/internal/envelope"
	"github.com/dmitrijs2005/sealmail/internal/identity"
	"github.com/dmitrijs2005/sealmail/internal/logging"
)

var (
	ErrNoRecipients        = errors.New("no recipients")
	ErrAttachmentTooLarge  = errors.New("attachment too large")
	ErrUnexpectedResult    = errors.New("unexpected ledger result")
	ErrMissingEmailCreated = errors.New("receipt has no EmailCreated event")
)

const (
	DefaultAttachmentLimit = 1 << 20
	resolveParallelism     = 8
)

// Ledger is the part of the ledger client the mail service needs.
type Ledger interface {
	Ledger() contract.Address
	Call(ctx context.Context, c contract.Call) (any, error)
	Send(ctx context.Context, c contract.Call) (*contract.Receipt, error)
}

// Account is the logged-in user.
type Account struct {
	Handle  string
	Address contract.Address
	Private cryptox.PrivateKey
	Public  cryptox.PublicKey
}

type Service struct {
	ledger   Ledger
	resolver identity.Resolver
	codec    *envelope.Codec
	chunker  *attachment.Chunker
	logger   logging.Logger
	me       Account

	chunkSize       int
	attachmentLimit int64
	mode            envelope.Mode

	mu      sync.Mutex
	version *contract.SchemaVersion
}

type Option func(*Service)

func WithChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

func WithAttachmentLimit(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.attachmentLimit = n
		}
	}
}

func WithMode(m envelope.Mode) Option {
	return func(s *Service) { s.mode = m }
}

func NewService(l Ledger, r identity.Resolver, store blobstore.Store, me Account, logger logging.Logger, opts ...Option) *Service {
	s := &Service{
		ledger:          l,
		resolver:        r,
		logger:          logger.With("module", "mail"),
		me:              me,
		chunkSize:       attachment.DefaultChunkSize,
		attachmentLimit: DefaultAttachmentLimit,
	}
	for _, o := range opts {
		o(s)
	}
	s.codec = envelope.NewCodec(store, envelope.WithMode(s.mode))
	s.chunker = attachment.NewChunker(store, 4)
	return s
}

// Me returns the account the service acts for.
func (s *Service) Me() Account {
	return s.me
}

// SchemaVersion returns the schema version of the ledger, fetched once.
func (s *Service) SchemaVersion(ctx context.Context) (contract.SchemaVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.version != nil {
		return *s.version, nil
	}

	res, err := s.ledger.Call(ctx, contract.Call{Contract: contract.ContractMail, Method: contract.MethodSchemaVersion})
	if err != nil {
		return 0, err
	}
	n, err := contract.Params{res}.Int64(0)
	if err != nil {
		return 0, fmt.Errorf("%w: schemaVersion: %v", ErrUnexpectedResult, err)
	}
	v, err := contract.ParseSchemaVersion(n)
	if err != nil {
		return 0, err
	}
	s.version = &v
	return v, nil
}

// File is an attachment to be sent.
type File struct {
	Name         string
	Type         string
	LastModified int64
	Data         []byte
}

// Draft is a message before it is sent. Recipients are identity handles.
type Draft struct {
	To          []string
	Cc          []string
	Subject     string
	Message     string
	Attachments []File
}

// Rejection is a recipient the ledger refused to add.
type Rejection struct {
	Identity string
	Role     contract.Role
	Err      error
}

// SendResult reports the new message id and the recipients that could not
// be added. The message exists as soon as ID is set, whatever Rejected holds.
type SendResult struct {
	ID       int64
	Rejected []Rejection
}

type recipient struct {
	handle  string
	role    contract.Role
	address contract.Address
	key     cryptox.PublicKey
}

// Send seals d for the sender and every recipient, stores the ciphertext,
// creates the message and adds the recipients one by one.
//
// Any failure before the message is created aborts the send: an unknown
// recipient (*common.InvalidRecipientError), an oversized attachment, a
// sealing or storage error. Recipient failures after that are collected in
// SendResult.Rejected.
func (s *Service) Send(ctx context.Context, d Draft) (*SendResult, error) {
	recipients, err := s.plan(d)
	if err != nil {
		return nil, err
	}

	if len(d.Cc) > 0 {
		v, err := s.SchemaVersion(ctx)
		if err != nil {
			return nil, err
		}
		if !v.SupportsCc() {
			return nil, fmt.Errorf("%w: cc on %s", common.ErrUnsupportedBySchema, v)
		}
	}

	for _, f := range d.Attachments {
		if int64(len(f.Data)) > s.attachmentLimit {
			return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrAttachmentTooLarge, f.Name, len(f.Data), s.attachmentLimit)
		}
	}

	if err := s.resolve(ctx, recipients); err != nil {
		return nil, err
	}

	attachments, err := s.storeAttachments(ctx, d.Attachments)
	if err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(Payload{Subject: d.Subject, Message: d.Message, Attachments: attachments})
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plaintext)

	keys := make([]cryptox.PublicKey, 0, 1+len(recipients))
	keys = append(keys, s.me.Public)
	for _, r := range recipients {
		keys = append(keys, r.key)
	}

	envelopes, err := s.codec.Seal(ctx, plaintext, keys)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	own := envelopes[s.me.Public]
	receipt, err := s.ledger.Send(ctx, contract.Call{
		Contract: contract.ContractMail,
		Method:   contract.MethodSend,
		Params:   contract.Params{own.StorageID, own.WrappedKey},
	})
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	created, ok := receipt.Find(contract.EventEmailCreated)
	if !ok {
		return nil, ErrMissingEmailCreated
	}
	id, err := created.ID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResult, err)
	}

	result := &SendResult{ID: id}

	for _, r := range recipients {
		env := envelopes[r.key]
		_, err := s.ledger.Send(ctx, contract.Call{
			Contract: contract.ContractMail,
			Method:   contract.MethodAddRecipient,
			Params:   contract.Params{id, r.address, env.StorageID, env.WrappedKey, string(r.role)},
		})
		if err != nil {
			s.logger.Warn(ctx, "recipient rejected", "id", id, "identity", r.handle, "role", r.role, "error", err)
			result.Rejected = append(result.Rejected, Rejection{Identity: r.handle, Role: r.role, Err: err})
		}
	}

	s.logger.Info(ctx, "message sent", "id", id, "recipients", len(recipients), "rejected", len(result.Rejected))
	return result, nil
}

// plan lists the recipients of d, dropping repeats within a role.
func (s *Service) plan(d Draft) ([]*recipient, error) {
	var out []*recipient
	for _, group := range []struct {
		role    contract.Role
		handles []string
	}{
		{contract.RoleTo, d.To},
		{contract.RoleCc, d.Cc},
	} {
		seen := make(map[string]struct{}, len(group.handles))
		for _, h := range group.handles {
			h = identity.Normalize(h)
			if h == "" {
				continue
			}
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, &recipient{handle: h, role: group.role})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}

// resolve looks up the address and public key of every recipient in
// parallel. The first unknown identity fails the whole send.
func (s *Service) resolve(ctx context.Context, recipients []*recipient) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveParallelism)

	for _, r := range recipients {
		g.Go(func() error {
			a, err := s.resolver.ResolveAddress(ctx, r.handle)
			if err != nil {
				return err
			}
			if a.IsZero() {
				return &common.InvalidRecipientError{Identity: r.handle}
			}
			k, err := s.resolver.ResolvePublicKey(ctx, r.handle)
			if err != nil {
				return err
			}
			r.address, r.key = a, k
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) storeAttachments(ctx context.Context, files []File) ([]Attachment, error) {
	out := make([]Attachment, 0, len(files))
	for _, f := range files {
		key := cryptox.NewContentKey()

		lastModified := f.LastModified
		if lastModified == 0 {
			lastModified = time.Now().UnixMilli()
		}
		info := attachment.FileInfo{Name: f.Name, Size: int64(len(f.Data)), Type: f.Type, LastModified: lastModified}

		stored, err := s.chunker.Store(ctx, bytes.NewReader(f.Data), info, s.chunkSize, key)
		if err != nil {
			common.WipeByteArray(key)
			return nil, fmt.Errorf("attachment %s: %w", f.Name, err)
		}

		out = append(out, Attachment{StoredFile: *stored, Key: base64.StdEncoding.EncodeToString(key)})
		common.WipeByteArray(key)
	}
	return out, nil
}

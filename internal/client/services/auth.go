// Package services contains the client's application services: account
// registration, online and offline login, and key file handling.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealmail/internal/client/client"
	"github.com/dmitrijs2005/sealmail/internal/client/repositories/session"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
	"github.com/dmitrijs2005/sealmail/internal/dbx"
)

// AuthClient is the part of the ledger client used for authentication.
type AuthClient interface {
	Register(ctx context.Context, handle string, publicKey cryptox.PublicKey, salt, verifier []byte) (contract.Address, error)
	GetSalt(ctx context.Context, handle string) ([]byte, error)
	Login(ctx context.Context, handle string, verifier []byte) (contract.Address, error)
	Ping(ctx context.Context) error
	Close() error
}

// AuthService defines authentication operations for the CLI.
//
//   - OnlineLogin authenticates against the server and remembers the session.
//   - OfflineLogin checks the password against the remembered session.
//   - Register creates the account bound to a public key.
//   - ClearOfflineData forgets the session.
type AuthService interface {
	OnlineLogin(ctx context.Context, handle string, password []byte) (*session.Session, error)
	OfflineLogin(ctx context.Context, handle string, password []byte) (*session.Session, error)
	Register(ctx context.Context, handle string, password []byte, publicKey cryptox.PublicKey) (contract.Address, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	ClearOfflineData(ctx context.Context) error
}

type authService struct {
	client AuthClient
	db     *sql.DB
}

func NewAuthService(c AuthClient, db *sql.DB) AuthService {
	return &authService{client: c, db: db}
}

func (a *authService) sessions() session.Repository {
	return session.NewSQLiteRepository(a.db)
}

// OfflineLogin derives the verifier from password and the stored salt and
// compares it with the stored one. Without a stored session for handle it
// returns client.ErrLocalDataNotAvailable.
func (a *authService) OfflineLogin(ctx context.Context, handle string, password []byte) (*session.Session, error) {
	s, err := a.sessions().Load(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil || s.Handle != handle {
		return nil, client.ErrLocalDataNotAvailable
	}

	masterKey := cryptox.DeriveMasterKey(password, s.Salt)
	defer common.WipeByteArray(masterKey)
	verifier := cryptox.MakeVerifier(masterKey)

	if subtle.ConstantTimeCompare(s.Verifier, verifier) == 0 {
		return nil, common.ErrorUnauthorized
	}
	return s, nil
}

// OnlineLogin logs in with the verifier derived from password and the
// server's salt, then stores the session for offline use.
func (a *authService) OnlineLogin(ctx context.Context, handle string, password []byte) (*session.Session, error) {
	salt, err := a.client.GetSalt(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("get salt error: %w", err)
	}

	masterKey := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(masterKey)
	verifier := cryptox.MakeVerifier(masterKey)

	address, err := a.client.Login(ctx, handle, verifier)
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}

	s := &session.Session{Handle: handle, Address: address, Salt: salt, Verifier: verifier}
	if err := a.saveOfflineData(ctx, s); err != nil {
		return nil, fmt.Errorf("offline data saving error: %w", err)
	}
	return s, nil
}

func (a *authService) saveOfflineData(ctx context.Context, s *session.Session) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return session.NewSQLiteRepository(tx).Save(ctx, *s)
	})
}

// Register creates the account. A fresh salt is generated; the server only
// ever sees the salt and the verifier.
func (a *authService) Register(ctx context.Context, handle string, password []byte, publicKey cryptox.PublicKey) (contract.Address, error) {
	if handle == "" {
		return "", errors.New("handle is required")
	}

	salt := common.GenerateRandByteArray(32)
	key := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(key)
	verifier := cryptox.MakeVerifier(key)

	return a.client.Register(ctx, handle, publicKey, salt, verifier)
}

func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}

// ClearOfflineData forgets the stored session (on logout).
func (a *authService) ClearOfflineData(ctx context.Context) error {
	return a.sessions().Clear(ctx)
}

// Package services contains the server-side business logic: accounts and
// tokens, the identity directory, presigned blob storage and the mail
// ledger state machine.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
	"github.com/dmitrijs2005/sealmail/internal/dbx"
	"github.com/dmitrijs2005/sealmail/internal/identity"
	"github.com/dmitrijs2005/sealmail/internal/server/auth"
	"github.com/dmitrijs2005/sealmail/internal/server/config"
	"github.com/dmitrijs2005/sealmail/internal/server/models"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserService registers accounts, verifies logins and issues tokens.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// RefreshToken redeems a refresh token for a fresh TokenPair. Each refresh
// token works once; an expired one yields common.ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair *TokenPair
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if err != nil {
			return fmt.Errorf("error redeeming refresh token: %w", err)
		}
		if token.Expired(time.Now()) {
			return common.ErrRefreshTokenExpired
		}
		pair, err = s.generateTokenPair(ctx, token.Address, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Register creates an account. The address is derived from publicKey.
func (s *UserService) Register(ctx context.Context, handle string, publicKey, salt, verifier []byte) (*models.User, error) {
	handle = identity.Normalize(handle)
	if handle == "" {
		return nil, fmt.Errorf("%w: empty handle", common.ErrInvalidParams)
	}
	pub, err := cryptox.ParsePublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidParams, err)
	}

	user := &models.User{
		Address:   string(contract.AddressFromPublicKey(pub)),
		Handle:    handle,
		PublicKey: pub[:],
		Salt:      salt,
		Verifier:  verifier,
	}
	repo := s.repomanager.Users(s.db)
	if err := repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return user, nil
}

// GetSalt returns the user's stored salt or a random salt if the user is absent,
// to avoid leaking existence through timing.
func (s *UserService) GetSalt(ctx context.Context, handle string) ([]byte, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByHandle(ctx, identity.Normalize(handle))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.getRandomSalt(), nil
		}
		return nil, common.ErrorInternal
	}
	return user.Salt, nil
}

// Login verifies the provided verifierCandidate against the stored verifier and,
// on success, returns a new TokenPair and the account address.
func (s *UserService) Login(ctx context.Context, handle string, verifierCandidate []byte) (*TokenPair, string, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByHandle(ctx, identity.Normalize(handle))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.ErrorUnauthorized
		}
		return nil, "", common.ErrorInternal
	}
	if !s.checkVerifier(user.Verifier, verifierCandidate) {
		return nil, "", common.ErrorUnauthorized
	}
	pair, err := s.generateTokenPair(ctx, user.Address, s.db)
	if err != nil {
		return nil, "", err
	}
	return pair, user.Address, nil
}

// VerifyAccessToken returns the address an access token was issued to.
func (s *UserService) VerifyAccessToken(token string) (string, error) {
	return auth.GetAddressFromToken(token, s.jwtSecret)
}

// PurgeExpiredTokens drops refresh tokens that can no longer be used.
func (s *UserService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, time.Now())
}

func (s *UserService) getRandomSalt() []byte { return common.GenerateRandByteArray(32) }

func (s *UserService) generateAccessToken(address string) (string, error) {
	return auth.GenerateToken(address, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) checkVerifier(verifier []byte, candidate []byte) bool {
	return subtle.ConstantTimeCompare(verifier, candidate) == 1
}

func (s *UserService) generateTokenPair(ctx context.Context, address string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(address)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	err = s.repomanager.RefreshTokens(tx).Save(ctx, models.RefreshToken{
		Token:     refresh,
		Address:   address,
		ExpiresAt: time.Now().Add(s.refreshTokenValidityDuration),
	})
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/identity"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/repomanager"
)

// IdentityService answers directory lookups over the registered accounts.
// Unknown entries resolve to the zero address or an empty string rather than
// an error, so clients can tell "not registered" from a failure.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager) *IdentityService {
	return &IdentityService{db: db, repomanager: m}
}

func (s *IdentityService) IdentityToOwner(ctx context.Context, handle string) (contract.Address, error) {
	u, err := s.repomanager.Users(s.db).GetByHandle(ctx, identity.Normalize(handle))
	if errors.Is(err, common.ErrorNotFound) {
		return contract.ZeroAddress, nil
	}
	if err != nil {
		return "", err
	}
	return contract.Address(u.Address), nil
}

// PublicKeyByIdentity returns the base64 X25519 public key of handle.
func (s *IdentityService) PublicKeyByIdentity(ctx context.Context, handle string) (string, error) {
	u, err := s.repomanager.Users(s.db).GetByHandle(ctx, identity.Normalize(handle))
	if errors.Is(err, common.ErrorNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(u.PublicKey), nil
}

func (s *IdentityService) OwnerToIdentity(ctx context.Context, address contract.Address) (string, error) {
	u, err := s.repomanager.Users(s.db).GetByAddress(ctx, string(address))
	if errors.Is(err, common.ErrorNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.Handle, nil
}


// Package users declares and implements the store of registered accounts,
// which doubles as the identity directory.
package users

import (
	"context"

	"github.com/dmitrijs2005/sealmail/internal/server/models"
)

type Repository interface {
	// Create returns common.ErrAlreadyExists when the handle or the address
	// is taken.
	Create(ctx context.Context, user *models.User) error
	GetByHandle(ctx context.Context, handle string) (*models.User, error)
	GetByAddress(ctx context.Context, address string) (*models.User, error)
}

// Package refreshtokens stores the single-use refresh tokens handed out at
// login and on every refresh.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sealmail/internal/server/models"
)

type Repository interface {
	Save(ctx context.Context, t models.RefreshToken) error

	// Consume deletes the token and returns what it was issued for, so a
	// token can be redeemed once. Unknown tokens give common.ErrorNotFound.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)

	// DeleteExpired purges tokens that expired before now and returns how
	// many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

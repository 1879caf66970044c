package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sealmail/internal/dbx"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Ledgers(db dbx.DBTX) ledger.Repository
}

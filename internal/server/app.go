// Package server wires the ledger server together: PostgreSQL and its
// migrations, the default ledger instance, the event hub, the services and
// the gRPC endpoint. It also handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/sealmail/internal/logging"
	"github.com/dmitrijs2005/sealmail/internal/server/config"
	"github.com/dmitrijs2005/sealmail/internal/server/events"
	"github.com/dmitrijs2005/sealmail/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sealmail/internal/server/services"

	gs "github.com/dmitrijs2005/sealmail/internal/server/grpc"
)

const tokenPurgeInterval = 10 * time.Minute

type App struct {
	config          *config.Config
	logger          logging.Logger
	db              *sql.DB
	hub             *events.Hub
	userService     *services.UserService
	identityService *services.IdentityService
	storageService  *services.StorageService
	ledgerService   *services.LedgerService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, "json", c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	ledgerAddr, owner, version, err := c.DefaultLedger()
	if err != nil {
		db.Close()
		return nil, err
	}

	hub := events.NewHub(64)
	ls := services.NewLedgerService(db, rm, hub, ledgerAddr)
	if err := ls.EnsureLedger(ctx, ledgerAddr, owner, version); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger init error: %w", err)
	}

	return &App{
		config:          c,
		logger:          logger,
		db:              db,
		hub:             hub,
		userService:     services.NewUserService(db, rm, c),
		identityService: services.NewIdentityService(db, rm),
		storageService:  services.NewStorageService(c),
		ledgerService:   ls,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger,
		app.userService, app.identityService, app.storageService, app.ledgerService, app.hub,
		app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// purgeTokens drops expired refresh tokens until ctx is cancelled.
func (app *App) purgeTokens(ctx context.Context) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.userService.PurgeExpiredTokens(ctx)
			if err != nil {
				app.logger.Warn(ctx, "token purge failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired refresh tokens purged", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "ledger", app.config.LedgerAddress)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.purgeTokens(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}
}

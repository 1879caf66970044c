package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/sealmail/internal/blobstore"
	"github.com/dmitrijs2005/sealmail/internal/client/client"
	"github.com/dmitrijs2005/sealmail/internal/client/config"
	"github.com/dmitrijs2005/sealmail/internal/client/mail"
	"github.com/dmitrijs2005/sealmail/internal/client/repositories/session"
	"github.com/dmitrijs2005/sealmail/internal/client/services"
	"github.com/dmitrijs2005/sealmail/internal/client/subscription"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/identity"
	"github.com/dmitrijs2005/sealmail/internal/logging"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

// mailService is what the commands need from *mail.Service.
type mailService interface {
	Me() mail.Account
	Send(ctx context.Context, d mail.Draft) (*mail.SendResult, error)
	List(ctx context.Context, f mail.Folder) ([]contract.Email, error)
	Open(ctx context.Context, id int64) (*mail.Message, error)
	AttachmentData(ctx context.Context, m *mail.Message, i int) ([]byte, error)
	MarkRead(ctx context.Context, id int64, read bool) error
	MarkImportant(ctx context.Context, id int64, important bool) error
	Delete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
	Export(ctx context.Context, m *mail.Message, w io.Writer) error
	Watch(ctx context.Context, subs mail.Subscriber, fn func(id int64)) error
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	authService services.AuthService
	subs        mail.Subscriber
	newMail     func(me mail.Account) mailService

	mail     mailService
	session  *session.Session
	userName string

	modeMu sync.Mutex
	Mode   Mode

	reader *bufio.Reader
	out    io.Writer
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	api, err := client.NewLedgerClient(c.ServerEndpointAddr, contract.Address(c.LedgerAddress))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store, err := blobStore(c, db, api)
	if err != nil {
		_ = db.Close()
		_ = api.Close()
		return nil, err
	}

	resolver := identity.NewLedgerResolver(api)
	newMail := func(me mail.Account) mailService {
		return mail.NewService(api, resolver, store, me, logger,
			mail.WithChunkSize(c.ChunkSize),
			mail.WithAttachmentLimit(c.AttachmentLimit),
		)
	}

	return &App{
		config:      c,
		logger:      logger,
		authService: services.NewAuthService(api, db),
		subs:        subscription.NewManager(api, logger, 16),
		newMail:     newMail,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
	}, nil
}

func blobStore(c *config.Config, db *sql.DB, api *client.GRPCClient) (blobstore.Store, error) {
	switch c.BlobMode {
	case config.BlobModeS3:
		return blobstore.NewPresignedStore(api), nil
	case config.BlobModeSQLite:
		return blobstore.NewSQLiteStore(db), nil
	}
	return nil, fmt.Errorf("unknown blob mode %q", c.BlobMode)
}

// Run executes a single command when args name one, and the interactive
// REPL otherwise.
func (a *App) Run(ctx context.Context, cmd string, args []string) error {
	defer a.authService.Close(ctx)

	if cmd != "" {
		if cmd != "keygen" && cmd != "register" && cmd != "login" {
			if err := a.Login(ctx); err != nil {
				return err
			}
		}
		known, err := dispatch(ctx, a, cmd, args)
		if !known {
			return fmt.Errorf("unknown command %q", cmd)
		}
		return err
	}

	a.Root(ctx)
	return nil
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	if a.Mode != mode {
		a.Mode = mode
		a.logger.Info(context.Background(), "switched mode", "mode", mode)
	}
}

func (a *App) mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.Mode
}

func (a *App) isLoggedIn() bool {
	return a.mail != nil
}

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = identity.Display(a.userName) + " "
	}
	if m := a.mode(); m != "" {
		s = s + string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// StartOnlineStatusWatcher pings the server every interval and flips the
// mode between online and offline until ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.authService.Ping(pctx)
			cancel()

			switch {
			case err != nil && a.mode() == ModeOnline:
				a.setMode(ModeOffline)
			case err == nil && a.mode() != ModeOnline:
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}

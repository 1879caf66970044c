package migrator

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/dmitrijs2005/sealmail/internal/client/client"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/cryptox"
	"github.com/dmitrijs2005/sealmail/internal/logging"
)

const usage = "usage: migrator [-a addr] [-u handle] [-d dir] " +
	"download-emails -source ADDR | upload-emails -target ADDR | migrate -source ADDR -target ADDR"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// AuthClient logs the migrator in as the ledger owner.
type AuthClient interface {
	GetSalt(ctx context.Context, handle string) ([]byte, error)
	Login(ctx context.Context, handle string, verifier []byte) (contract.Address, error)
}

// Client is the ledger connection used by App.
type Client interface {
	AuthClient
	Ledger
	Close() error
}

type App struct {
	config *Config
	logger logging.Logger
	client Client
	out    io.Writer
}

func NewApp(cfg *Config, logger logging.Logger) (*App, error) {
	c, err := client.NewLedgerClient(cfg.ServerEndpointAddr, "")
	if err != nil {
		return nil, fmt.Errorf("ledger client: %w", err)
	}
	return &App{config: cfg, logger: logger, client: c, out: os.Stdout}, nil
}

// Login authenticates handle with the verifier derived from password.
func Login(ctx context.Context, c AuthClient, handle string, password []byte) (contract.Address, error) {
	salt, err := c.GetSalt(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("get salt error: %w", err)
	}

	masterKey := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(masterKey)

	address, err := c.Login(ctx, handle, cryptox.MakeVerifier(masterKey))
	if err != nil {
		return "", fmt.Errorf("login error: %w", err)
	}
	return address, nil
}

func (a *App) password() ([]byte, error) {
	if a.config.Password != "" {
		return []byte(a.config.Password), nil
	}
	fmt.Fprint(a.out, "Enter password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	return pw, err
}

type runArgs struct {
	source contract.Address
	target contract.Address
}

func parseRunArgs(cmd string, args []string, needSource, needTarget bool) (runArgs, error) {
	var source, target string

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&source, "source", "", "source ledger address")
	fs.StringVar(&target, "target", "", "target ledger address")
	if err := fs.Parse(args); err != nil {
		return runArgs{}, fmt.Errorf("%s: %w", cmd, err)
	}

	var r runArgs
	var err error
	if needSource {
		if r.source, err = contract.ParseAddress(source); err != nil {
			return runArgs{}, fmt.Errorf("-source: %w", err)
		}
	}
	if needTarget {
		if r.target, err = contract.ParseAddress(target); err != nil {
			return runArgs{}, fmt.Errorf("-target: %w", err)
		}
	}
	return r, nil
}

// Run logs in and executes cmd, printing "completed" when the sweep has
// gone through every id.
func (a *App) Run(ctx context.Context, cmd string, args []string) error {
	defer a.client.Close()

	var needSource, needTarget bool
	switch cmd {
	case "download-emails":
		needSource = true
	case "upload-emails":
		needTarget = true
	case "migrate":
		needSource, needTarget = true, true
	default:
		return errors.New(usage)
	}

	r, err := parseRunArgs(cmd, args, needSource, needTarget)
	if err != nil {
		return err
	}
	if a.config.Handle == "" {
		return errors.New("owner handle is required (-u or SEALMAIL_HANDLE)")
	}

	pw, err := a.password()
	if err != nil {
		return err
	}
	owner, err := Login(ctx, a.client, a.config.Handle, pw)
	common.WipeByteArray(pw)
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "logged in", "handle", a.config.Handle, "address", owner)

	m := New(a.client, a.logger)

	var st Stats
	switch cmd {
	case "download-emails":
		st, err = m.Download(ctx, r.source, a.config.CacheDir)
	case "upload-emails":
		st, err = m.UploadDir(ctx, r.target, a.config.CacheDir)
	case "migrate":
		st, err = m.Migrate(ctx, r.source, r.target)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, st)
	fmt.Fprintln(a.out, "completed")
	return nil
}

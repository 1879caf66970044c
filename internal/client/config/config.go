package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sealmail/internal/contract"
)

// Blob storage modes.
const (
	BlobModeS3     = "s3"
	BlobModeSQLite = "sqlite"
)

// Config holds runtime settings for the SealMail CLI.
//
// BlobMode "s3" stores sealed bodies and attachment chunks through presigned
// URLs minted by the server; "sqlite" keeps them in the local database at
// DatabasePath, which always holds the login session. An empty LedgerAddress
// means the server's default ledger.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	LedgerAddress       string
	KeyFile             string
	BlobMode            string
	DatabasePath        string
	ChunkSize           int
	AttachmentLimit     int64
	LogLevel            string
}

func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.KeyFile = "sealmail.key"
	c.BlobMode = BlobModeS3
	c.DatabasePath = "sealmail.db"
	c.ChunkSize = 5 << 20
	c.AttachmentLimit = 1 << 20
	c.LogLevel = "info"
}

// Validate reports settings the CLI cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.BlobMode != BlobModeS3 && c.BlobMode != BlobModeSQLite {
		errs = append(errs, fmt.Errorf("unknown blob mode %q", c.BlobMode))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk size must be positive"))
	}
	if c.AttachmentLimit < 0 {
		errs = append(errs, errors.New("negative attachment limit"))
	}
	if c.OnlineCheckInterval <= 0 {
		errs = append(errs, errors.New("online check interval must be positive"))
	}
	if c.LedgerAddress != "" {
		if _, err := contract.ParseAddress(c.LedgerAddress); err != nil {
			errs = append(errs, fmt.Errorf("ledger address: %w", err))
		}
	}
	return errors.Join(errs...)
}

// LoadConfig applies defaults, the JSON file and the flags, later sources
// winning, and validates the result.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

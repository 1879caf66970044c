package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/sealmail/internal/flagx"
)

var flagNames = []string{"-a", "-i", "-l", "-k", "-m", "-f", "-n", "-s", "-v"}

// Command returns the subcommand and its arguments from os.Args, skipping
// the configuration flags (and -c/-config) wherever they appear.
func Command() (string, []string) {
	known := append([]string{"-c", "-config"}, flagNames...)
	return flagx.Command(flagx.StripFlags(os.Args[1:], known))
}

// parseFlags overlays cfg with the configuration flags found anywhere in
// os.Args; subcommand flags are left alone. A malformed value panics.
func parseFlags(cfg *Config) {
	fs := flag.NewFlagSet("sealmail", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "ledger server host:port")
	fs.Func("i", "online check interval (duration or seconds)", secondsOrDuration(&cfg.OnlineCheckInterval))
	fs.StringVar(&cfg.LedgerAddress, "l", cfg.LedgerAddress, "ledger address")
	fs.StringVar(&cfg.KeyFile, "k", cfg.KeyFile, "private key file")
	fs.StringVar(&cfg.BlobMode, "m", cfg.BlobMode, "blob mode: s3 or sqlite")
	fs.StringVar(&cfg.DatabasePath, "f", cfg.DatabasePath, "local database path")
	fs.IntVar(&cfg.ChunkSize, "n", cfg.ChunkSize, "attachment chunk size in bytes")
	fs.Int64Var(&cfg.AttachmentLimit, "s", cfg.AttachmentLimit, "largest attachment in bytes")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(os.Args[1:], flagNames)); err != nil {
		panic(err)
	}
}

func secondsOrDuration(dst *time.Duration) func(string) error {
	return func(s string) error {
		if n, err := strconv.Atoi(s); err == nil {
			*dst = time.Duration(n) * time.Second
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

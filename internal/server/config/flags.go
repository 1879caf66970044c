package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/sealmail/internal/flagx"
)

var flagNames = []string{"-a", "-d", "-s", "-t", "-r", "-u", "-p", "-b", "-g", "-e", "-l", "-o", "-n", "-v"}

// parseFlags overlays config with command-line flags:
//
//	-a  gRPC bind address         -u  S3 root user
//	-d  PostgreSQL DSN            -p  S3 root password
//	-s  token signing secret      -b  S3 bucket
//	-t  access token validity     -g  S3 region
//	-r  refresh token validity    -e  S3 base endpoint
//	-l  default ledger address    -o  default ledger owner
//	-n  default ledger schema     -v  log level
//
// Token validities take a duration ("90s", "2h") or a bare number of
// minutes. A malformed value panics.
func parseFlags(config *Config) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC bind address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "token signing secret")
	fs.Func("t", "access token validity", minutesOrDuration(&config.AccessTokenValidityDuration))
	fs.Func("r", "refresh token validity", minutesOrDuration(&config.RefreshTokenValidityDuration))

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.LedgerAddress, "l", config.LedgerAddress, "default ledger address")
	fs.StringVar(&config.LedgerOwner, "o", config.LedgerOwner, "default ledger owner")
	fs.IntVar(&config.SchemaVersion, "n", config.SchemaVersion, "default ledger schema version")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(os.Args[1:], flagNames)); err != nil {
		panic(err)
	}
}

func minutesOrDuration(dst *time.Duration) func(string) error {
	return func(s string) error {
		if n, err := strconv.Atoi(s); err == nil {
			*dst = time.Duration(n) * time.Minute
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

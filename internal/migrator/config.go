package migrator

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/sealmail/internal/flagx"
)

// Config holds the settings of the migrator command.
//
// The password is read from SEALMAIL_PASSWORD when set (a .env file works
// too); otherwise it is prompted for.
type Config struct {
	ServerEndpointAddr string
	Handle             string
	Password           string
	CacheDir           string
	LogLevel           string
}

func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.CacheDir = DefaultCacheDir
	c.LogLevel = "info"
}

var flagNames = []string{"-a", "-u", "-d", "-v"}

// LoadConfig applies defaults, the environment and then the global flags.
// Subcommand flags such as -source are left for Run.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.Password = os.Getenv("SEALMAIL_PASSWORD")
	if h := os.Getenv("SEALMAIL_HANDLE"); h != "" {
		cfg.Handle = h
	}
	parseFlags(cfg)
	return cfg
}

func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], flagNames)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port of the ledger server")
	fs.StringVar(&cfg.Handle, "u", cfg.Handle, "handle of the ledger owner")
	fs.StringVar(&cfg.CacheDir, "d", cfg.CacheDir, "message cache directory")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}

// Command returns the subcommand and its own arguments from os.Args.
func Command() (string, []string) {
	return flagx.Command(flagx.StripFlags(os.Args[1:], flagNames))
}

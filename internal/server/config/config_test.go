package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/sealmail/internal/contract"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	os.Args = append([]string{"server"}, args...)
}

func defaults() Config {
	var c Config
	c.LoadDefaults()
	return c
}

func TestDefaultsAreValid(t *testing.T) {
	c := defaults()
	require.NoError(t, c.Validate())

	addr, owner, v, err := c.DefaultLedger()
	require.NoError(t, err)
	assert.Equal(t, contract.Address("0x00000000000000000000000000000000000000e1"), addr)
	assert.Equal(t, contract.Address("0x0000000000000000000000000000000000000001"), owner)
	assert.Equal(t, contract.LatestSchema, v)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "no endpoint", mutate: func(c *Config) { c.EndpointAddrGRPC = "" }, wantErr: "endpoint"},
		{name: "no secret", mutate: func(c *Config) { c.SecretKey = "" }, wantErr: "secret key"},
		{name: "zero access validity", mutate: func(c *Config) { c.AccessTokenValidityDuration = 0 }, wantErr: "positive"},
		{
			name: "access outlives refresh",
			mutate: func(c *Config) {
				c.AccessTokenValidityDuration = 2 * time.Hour
				c.RefreshTokenValidityDuration = time.Hour
			},
			wantErr: "outlives",
		},
		{name: "bad ledger", mutate: func(c *Config) { c.LedgerAddress = "e1" }, wantErr: "ledger address"},
		{name: "bad owner", mutate: func(c *Config) { c.LedgerOwner = "" }, wantErr: "ledger owner"},
		{name: "bad schema", mutate: func(c *Config) { c.SchemaVersion = 7 }, wantErr: "schema version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaults()
			tt.mutate(&c)
			require.ErrorContains(t, c.Validate(), tt.wantErr)
		})
	}
}

func TestParseFlags(t *testing.T) {
	withArgs(t,
		"-a", "127.0.0.1:9090", "-d", "postgres://mail@db/sealmail", "-s", "s3cr3t",
		"-t", "5", "-r", "12h", "-b", "mail-blobs", "-e", "http://minio:9000",
		"-l", "0x00000000000000000000000000000000000000aa", "-n", "1", "-v", "debug",
		"-x", "ignored",
	)

	c := defaults()
	parseFlags(&c)

	want := defaults()
	want.EndpointAddrGRPC = "127.0.0.1:9090"
	want.DatabaseDSN = "postgres://mail@db/sealmail"
	want.SecretKey = "s3cr3t"
	want.AccessTokenValidityDuration = 5 * time.Minute
	want.RefreshTokenValidityDuration = 12 * time.Hour
	want.S3Bucket = "mail-blobs"
	want.S3BaseEndpoint = "http://minio:9000"
	want.LedgerAddress = "0x00000000000000000000000000000000000000aa"
	want.SchemaVersion = 1
	want.LogLevel = "debug"

	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlags_Malformed(t *testing.T) {
	for _, args := range [][]string{{"-n", "two"}, {"-t", "soon"}} {
		withArgs(t, args...)
		c := defaults()
		assert.Panics(t, func() { parseFlags(&c) }, "%v", args)
	}
}

func TestParseJson(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"database_dsn": "postgres://mail@localhost/sealmail",
		"access_token_validity_duration": "10m",
		"s3": {"bucket": "archive", "region": "eu-north-1"},
		"ledger": {"owner": "0x00000000000000000000000000000000000000bb", "schema_version": 0}
	}`), 0o600))

	t.Run("overlays present keys", func(t *testing.T) {
		withArgs(t, "-config", path)
		c := defaults()
		parseJson(&c)

		want := defaults()
		want.DatabaseDSN = "postgres://mail@localhost/sealmail"
		want.AccessTokenValidityDuration = 10 * time.Minute
		want.S3Bucket = "archive"
		want.S3Region = "eu-north-1"
		want.LedgerOwner = "0x00000000000000000000000000000000000000bb"
		want.SchemaVersion = 0

		if diff := cmp.Diff(want, c); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("no file", func(t *testing.T) {
		withArgs(t)
		c := defaults()
		parseJson(&c)
		assert.Equal(t, defaults(), c)
	})

	t.Run("malformed", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{"s3": [`), 0o600))
		withArgs(t, "-c", bad)
		c := defaults()
		assert.Panics(t, func() { parseJson(&c) })
	})
}

func TestLoadConfig_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"secret_key": "from-json", "log_level": "warn"}`), 0o600))
	t.Setenv(envSecretKey, "from-env")
	withArgs(t, "-c", path, "-v", "error")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.SecretKey)
	assert.Equal(t, "error", c.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	withArgs(t, "-o", "nobody")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "invalid server config")
}

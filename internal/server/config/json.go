package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/sealmail/internal/flagx"
	"github.com/dmitrijs2005/sealmail/internal/timex"
)

// JsonConfig is the on-disk form of Config. Absent keys keep the previous
// layer's value. Durations accept "15m" as well as integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	S3                           struct {
		RootUser     string `json:"root_user"`
		RootPassword string `json:"root_password"`
		Bucket       string `json:"bucket"`
		Region       string `json:"region"`
		BaseEndpoint string `json:"base_endpoint"`
	} `json:"s3"`
	Ledger struct {
		Address       string `json:"address"`
		Owner         string `json:"owner"`
		SchemaVersion *int   `json:"schema_version"`
	} `json:"ledger"`
	LogLevel string `json:"log_level"`
}

// parseJson overlays config with the file named by -c / -config, if any.
// Unreadable or malformed files panic.
func parseJson(config *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	overlay(&config.EndpointAddrGRPC, jc.EndpointAddrGRPC)
	overlay(&config.DatabaseDSN, jc.DatabaseDSN)
	overlay(&config.SecretKey, jc.SecretKey)
	overlay(&config.AccessTokenValidityDuration, jc.AccessTokenValidityDuration.Duration)
	overlay(&config.RefreshTokenValidityDuration, jc.RefreshTokenValidityDuration.Duration)

	overlay(&config.S3RootUser, jc.S3.RootUser)
	overlay(&config.S3RootPassword, jc.S3.RootPassword)
	overlay(&config.S3Bucket, jc.S3.Bucket)
	overlay(&config.S3Region, jc.S3.Region)
	overlay(&config.S3BaseEndpoint, jc.S3.BaseEndpoint)

	overlay(&config.LedgerAddress, jc.Ledger.Address)
	overlay(&config.LedgerOwner, jc.Ledger.Owner)
	if jc.Ledger.SchemaVersion != nil {
		config.SchemaVersion = *jc.Ledger.SchemaVersion
	}

	overlay(&config.LogLevel, jc.LogLevel)
}

func overlay[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

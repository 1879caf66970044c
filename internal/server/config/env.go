package config

import (
	"os"
	"strings"
)

// Environment variables read by parseEnv. A .env file is loaded into the
// environment by cmd/server before the config is built.
const (
	envDatabaseDSN    = "SEALMAIL_DATABASE_DSN"
	envSecretKey      = "SEALMAIL_SECRET_KEY"
	envS3RootUser     = "SEALMAIL_S3_ROOT_USER"
	envS3RootPassword = "SEALMAIL_S3_ROOT_PASSWORD"
)

// parseEnv overlays the secrets that should not appear on the command line.
func parseEnv(config *Config) {
	config.DatabaseDSN = getEnvString(envDatabaseDSN, config.DatabaseDSN)
	config.SecretKey = getEnvString(envSecretKey, config.SecretKey)
	config.S3RootUser = getEnvString(envS3RootUser, config.S3RootUser)
	config.S3RootPassword = getEnvString(envS3RootPassword, config.S3RootPassword)
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

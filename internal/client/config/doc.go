// Package config loads the SealMail CLI configuration: built-in defaults,
// then an optional JSON file given with -c or -config, then flags.
//
//	-a  ledger server host:port       -m  blob mode, s3 or sqlite
//	-i  online check interval         -f  local database path
//	-l  ledger address                -n  attachment chunk size
//	-k  private key file              -s  attachment size limit
//	-v  log level
//
// The flags may appear before or after the subcommand; Command returns what
// is left. A JSON file looks like
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "key_file": "sealmail.key",
//	  "blobs": {"mode": "sqlite", "chunk_size": 5242880, "attachment_limit": 1048576},
//	  "database_path": "sealmail.db",
//	  "log_level": "info"
//	}
package config

package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/sealmail/internal/flagx"
	"github.com/dmitrijs2005/sealmail/internal/timex"
)

// JsonConfig is the on-disk form of Config. Absent keys keep the default.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	LedgerAddress       string         `json:"ledger_address"`
	KeyFile             string         `json:"key_file"`
	Blobs               struct {
		Mode            string `json:"mode"`
		ChunkSize       int    `json:"chunk_size"`
		AttachmentLimit int64  `json:"attachment_limit"`
	} `json:"blobs"`
	DatabasePath string `json:"database_path"`
	LogLevel     string `json:"log_level"`
}

// parseJson overlays cfg with the file named by -c or -config. Read and
// decode errors panic.
func parseJson(cfg *Config) {
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

	overlay(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	overlay(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval.Duration)
	overlay(&cfg.LedgerAddress, jc.LedgerAddress)
	overlay(&cfg.KeyFile, jc.KeyFile)
	overlay(&cfg.BlobMode, jc.Blobs.Mode)
	overlay(&cfg.ChunkSize, jc.Blobs.ChunkSize)
	overlay(&cfg.AttachmentLimit, jc.Blobs.AttachmentLimit)
	overlay(&cfg.DatabasePath, jc.DatabasePath)
	overlay(&cfg.LogLevel, jc.LogLevel)
}

func overlay[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "relay":
		return relayTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const relayTemplate = `id = "relay"
addr = ":9400"
base_path = ""
cors_origins = ["http://localhost:3000"]
key_file = "local/chunkwire.key"
upload_dir = "local/uploads"
min_chunk_size = 524288
max_chunk_size = 1048576
max_body_bytes = 4194304
transfer_ttl = "10m"
`

const clientTemplate = `endpoint = "http://localhost:9400/upload"
key_file = "local/chunkwire.key"
format = "json"
timeout = "30s"
min_chunk_size = 524288
max_chunk_size = 1048576
`

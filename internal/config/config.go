package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/chunkwire/internal/chunker"
	"github.com/danmuck/chunkwire/internal/cipher"
	"github.com/danmuck/chunkwire/internal/protocol"
	"github.com/danmuck/chunkwire/internal/relay"
	"github.com/pelletier/go-toml/v2"
)

var ErrBodyLimit = errors.New("relay config: max_body_bytes cannot hold a max_chunk_size envelope")

// RelayConfig configures the relay daemon. max_chunk_size is the largest
// plaintext chunk the relay accepts; max_body_bytes must hold its envelope.
type RelayConfig struct {
	ID           string   `toml:"id"`
	Addr         string   `toml:"addr"`
	BasePath     string   `toml:"base_path"`
	CorsOrigins  []string `toml:"cors_origins"`
	KeyFile      string   `toml:"key_file"`
	UploadDir    string   `toml:"upload_dir"`
	MinChunkSize int      `toml:"min_chunk_size"`
	MaxChunkSize int      `toml:"max_chunk_size"`
	MaxBodyBytes int64    `toml:"max_body_bytes"`
	TransferTTL  string   `toml:"transfer_ttl"`
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		ID:           "relay",
		Addr:         ":9400",
		MinChunkSize: chunker.DefaultMinChunkSize,
		MaxChunkSize: chunker.DefaultMaxChunkSize,
		MaxBodyBytes: 4 << 20,
		TransferTTL:  "10m",
	}
}

// LoadRelayConfig reads path over DefaultRelayConfig and validates the result.
func LoadRelayConfig(path string) (RelayConfig, error) {
	cfg := DefaultRelayConfig()
	if err := loadToml(path, &cfg); err != nil {
		return RelayConfig{}, err
	}
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = "relay"
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":9400"
	}
	if err := ValidateRelayConfig(cfg); err != nil {
		return RelayConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateRelayConfig(cfg RelayConfig) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return fmt.Errorf("relay config missing id")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("relay config missing addr")
	}
	if strings.TrimSpace(cfg.KeyFile) == "" {
		return fmt.Errorf("relay config missing key_file")
	}
	if err := chunker.ValidateBounds(cfg.MinChunkSize, cfg.MaxChunkSize); err != nil {
		return fmt.Errorf("relay config: %w", err)
	}
	if cfg.MaxBodyBytes < 0 {
		return fmt.Errorf("relay config max_body_bytes must not be negative")
	}
	if limit, need := cfg.BodyLimit(), ChunkEnvelopeSize(cfg.MaxChunkSize); limit < need {
		return fmt.Errorf("%w: %d < %d needed for %d byte chunks", ErrBodyLimit, limit, need, cfg.MaxChunkSize)
	}
	if _, err := cfg.TTL(); err != nil {
		return err
	}
	if bp := strings.TrimSpace(cfg.BasePath); bp != "" && !strings.HasPrefix(bp, "/") {
		return fmt.Errorf("relay config base_path must start with /")
	}
	return nil
}

// BodyLimit is the request body limit the relay enforces. Zero selects the
// relay default.
func (cfg RelayConfig) BodyLimit() int64 {
	if cfg.MaxBodyBytes == 0 {
		return relay.DefaultMaxBodyBytes
	}
	return cfg.MaxBodyBytes
}

// ChunkEnvelopeSize is the wire size of an envelope carrying an encrypted
// chunk of chunkSize plaintext bytes.
func ChunkEnvelopeSize(chunkSize int) int64 {
	return protocol.EncodedSize(chunkSize + cipher.Overhead)
}

// TTL parses transfer_ttl. An empty value disables expiry.
func (cfg RelayConfig) TTL() (time.Duration, error) {
	raw := strings.TrimSpace(cfg.TransferTTL)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("relay config transfer_ttl: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("relay config transfer_ttl must not be negative")
	}
	return d, nil
}

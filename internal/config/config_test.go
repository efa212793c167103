package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/chunkwire/internal/chunker"
	"github.com/danmuck/chunkwire/internal/relay"
	"github.com/danmuck/chunkwire/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRelayConfigDefaults(t *testing.T) {
	testlog.Start(t)

	cfg, err := LoadRelayConfig(writeConfig(t, `key_file = "k.key"`))
	require.NoError(t, err)
	require.Equal(t, "relay", cfg.ID)
	require.Equal(t, ":9400", cfg.Addr)
	require.Equal(t, chunker.DefaultMinChunkSize, cfg.MinChunkSize)
	require.Equal(t, chunker.DefaultMaxChunkSize, cfg.MaxChunkSize)
	ttl, err := cfg.TTL()
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, ttl)
}

func TestLoadRelayConfigOverrides(t *testing.T) {
	testlog.Start(t)

	cfg, err := LoadRelayConfig(writeConfig(t, `
id = "edge-relay"
addr = "127.0.0.1:9500"
base_path = "/v1"
key_file = "k.key"
upload_dir = "/tmp/uploads"
min_chunk_size = 1024
max_chunk_size = 4096
transfer_ttl = ""
`))
	require.NoError(t, err)
	require.Equal(t, "edge-relay", cfg.ID)
	require.Equal(t, "/v1", cfg.BasePath)
	require.Equal(t, 1024, cfg.MinChunkSize)
	ttl, err := cfg.TTL()
	require.NoError(t, err)
	require.Zero(t, ttl)
	require.Len(t, cfg.CodecOptions(), 1)
	require.Len(t, cfg.RelayOptions(), 4)
}

func TestLoadRelayConfigRejectsInvalid(t *testing.T) {
	testlog.Start(t)

	cases := map[string]string{
		"missing key":    `id = "r"`,
		"inverted sizes": "key_file = \"k\"\nmin_chunk_size = 10\nmax_chunk_size = 5",
		"zero min":       "key_file = \"k\"\nmin_chunk_size = 0",
		"bad ttl":        "key_file = \"k\"\ntransfer_ttl = \"soon\"",
		"base path":      "key_file = \"k\"\nbase_path = \"v1\"",
		"not toml":       "key_file = ",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRelayConfig(writeConfig(t, content))
			require.Error(t, err)
		})
	}

	_, err := LoadRelayConfig(writeConfig(t, "key_file = \"k\"\nmin_chunk_size = 10\nmax_chunk_size = 5"))
	require.ErrorIs(t, err, chunker.ErrInvalidBounds)

	_, err = LoadRelayConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestTemplatesParseAndValidate(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "relay.toml")
	require.NoError(t, WriteTemplate(path, "relay", false))
	cfg, err := LoadRelayConfig(path)
	require.NoError(t, err)
	require.Equal(t, "local/uploads", cfg.UploadDir)

	err = WriteTemplate(path, "relay", false)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "already exists"))
	require.NoError(t, WriteTemplate(path, "client", true))

	_, err = Template("controller")
	require.Error(t, err)
}

func TestValidateRelayConfigBodyLimitCoversMaxChunk(t *testing.T) {
	testlog.Start(t)

	cfg := DefaultRelayConfig()
	cfg.KeyFile = "k.key"
	require.NoError(t, ValidateRelayConfig(cfg))
	require.GreaterOrEqual(t, cfg.BodyLimit(), ChunkEnvelopeSize(cfg.MaxChunkSize))

	cfg.MaxChunkSize = 4 << 20
	err := ValidateRelayConfig(cfg)
	require.ErrorIs(t, err, ErrBodyLimit)

	cfg.MaxBodyBytes = ChunkEnvelopeSize(cfg.MaxChunkSize)
	require.NoError(t, ValidateRelayConfig(cfg))

	cfg.MaxBodyBytes--
	require.ErrorIs(t, ValidateRelayConfig(cfg), ErrBodyLimit)

	cfg.MaxBodyBytes = 0
	require.Equal(t, relay.DefaultMaxBodyBytes, int(cfg.BodyLimit()))
	require.ErrorIs(t, ValidateRelayConfig(cfg), ErrBodyLimit)

	_, err = LoadRelayConfig(writeConfig(t, "key_file = \"k\"\nmax_chunk_size = 4194304"))
	require.ErrorIs(t, err, ErrBodyLimit)
}

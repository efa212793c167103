package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/chunkwire/internal/chunker"
	"github.com/danmuck/chunkwire/internal/protocol"
)

type clientConfig struct {
	Endpoint     string
	KeyFile      string
	Format       protocol.Format
	Timeout      time.Duration
	MinChunkSize int
	MaxChunkSize int
}

type fileConfig struct {
	Endpoint     string `toml:"endpoint"`
	KeyFile      string `toml:"key_file"`
	Format       string `toml:"format"`
	Timeout      string `toml:"timeout"`
	MinChunkSize int    `toml:"min_chunk_size"`
	MaxChunkSize int    `toml:"max_chunk_size"`
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		Endpoint:     "http://localhost:9400/upload",
		KeyFile:      "local/chunkwire.key",
		Format:       protocol.JSON,
		Timeout:      30 * time.Second,
		MinChunkSize: chunker.DefaultMinChunkSize,
		MaxChunkSize: chunker.DefaultMaxChunkSize,
	}
}

func loadClientConfig(path string) (clientConfig, error) {
	cfg := defaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return clientConfig{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("endpoint") {
		if v := strings.TrimSpace(raw.Endpoint); v != "" {
			cfg.Endpoint = v
		}
	}

	if meta.IsDefined("key_file") {
		cfg.KeyFile = strings.TrimSpace(raw.KeyFile)
	}

	if meta.IsDefined("format") {
		f, err := protocol.FormatByName(raw.Format)
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse format: %w", err)
		}
		cfg.Format = f
	}

	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}

	if meta.IsDefined("min_chunk_size") {
		cfg.MinChunkSize = raw.MinChunkSize
	}

	if meta.IsDefined("max_chunk_size") {
		cfg.MaxChunkSize = raw.MaxChunkSize
	}

	if err := chunker.ValidateBounds(cfg.MinChunkSize, cfg.MaxChunkSize); err != nil {
		return clientConfig{}, err
	}
	return cfg, nil
}

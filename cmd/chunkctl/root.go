package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/danmuck/chunkwire/internal/cipher"
	"github.com/danmuck/chunkwire/internal/ident"
	"github.com/danmuck/chunkwire/internal/protocol"
	"github.com/danmuck/chunkwire/internal/protocol/codec"
	"github.com/danmuck/chunkwire/internal/transfer"
	"github.com/danmuck/chunkwire/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	endpoint   string
	keyFile    string
	format     string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "chunkctl",
		Short:         "Send encrypted commands and chunked uploads to a chunkwire relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "client config file (TOML)")
	cmd.PersistentFlags().StringVar(&flags.endpoint, "endpoint", "", "relay upload endpoint URL")
	cmd.PersistentFlags().StringVar(&flags.keyFile, "key", "", "key file (hex or base64, 32 bytes)")
	cmd.PersistentFlags().StringVar(&flags.format, "format", "", "wire format: json, cbor or tlv")

	cmd.AddCommand(
		newCommandCmd(flags),
		newUploadCmd(flags),
		newInspectCmd(flags),
		newKeygenCmd(),
	)
	return cmd
}

// resolve applies flags over the config file or the defaults.
func (f *rootFlags) resolve() (clientConfig, error) {
	cfg := defaultClientConfig()
	if f.configPath != "" {
		loaded, err := loadClientConfig(f.configPath)
		if err != nil {
			return clientConfig{}, err
		}
		cfg = loaded
	}
	if v := strings.TrimSpace(f.endpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(f.keyFile); v != "" {
		cfg.KeyFile = v
	}
	if v := strings.TrimSpace(f.format); v != "" {
		format, err := protocol.FormatByName(v)
		if err != nil {
			return clientConfig{}, err
		}
		cfg.Format = format
	}
	return cfg, nil
}

func (f *rootFlags) codec(cfg clientConfig) (*codec.Codec, error) {
	if cfg.KeyFile == "" {
		return nil, errors.New("key file required (--key or key_file)")
	}
	key, err := cipher.LoadKeyFile(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewAEAD(key)
	if err != nil {
		return nil, err
	}
	return codec.New(aead, ident.UUID{},
		codec.WithBounds(cfg.MinChunkSize, cfg.MaxChunkSize),
		codec.WithLogger(log.Logger),
	)
}

func (f *rootFlags) client(opts ...transfer.Option) (*transfer.Client, error) {
	cfg, err := f.resolve()
	if err != nil {
		return nil, err
	}
	cd, err := f.codec(cfg)
	if err != nil {
		return nil, err
	}
	tr := transport.NewHTTP(
		transport.WithFormat(cfg.Format),
		transport.WithClient(&http.Client{Timeout: cfg.Timeout}),
		transport.WithHeader("User-Agent", "chunkctl"),
	)
	return transfer.New(cd, tr, cfg.Endpoint, opts...)
}

func readPayload(path string) ([]byte, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return payload, nil
}

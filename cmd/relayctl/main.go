package main

import (
	"flag"

	"github.com/danmuck/chunkwire/internal/cipher"
	"github.com/danmuck/chunkwire/internal/config"
	"github.com/danmuck/chunkwire/internal/ident"
	"github.com/danmuck/chunkwire/internal/observability"
	"github.com/danmuck/chunkwire/internal/protocol/codec"
	"github.com/danmuck/chunkwire/internal/relay"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "cmd/relayctl/config.toml", "relay config path")
	flag.Parse()

	observability.InitLogger("relay")
	cfg, err := config.LoadRelayConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load relay config")
	}
	log.Info().Str("path", *configPath).Msg("loaded relay config")

	key, err := cipher.LoadKeyFile(cfg.KeyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load key")
	}
	aead, err := cipher.NewAEAD(key)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid key")
	}
	cd, err := codec.New(aead, ident.UUID{}, append(cfg.CodecOptions(), codec.WithLogger(log.Logger))...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build codec")
	}

	server := relay.Appear(cfg.ID, cfg.Addr, cd, cfg.CorsOrigins, cfg.RelayOptions()...)
	log.Info().
		Str("id", server.ID).
		Str("addr", server.Addr).
		Str("upload_dir", cfg.UploadDir).
		Msg("relay started")
	if err := server.Serve(); err != nil {
		log.Fatal().Err(err).Msg("relay stopped")
	}
}

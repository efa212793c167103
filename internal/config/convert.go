package config

import (
	"github.com/danmuck/chunkwire/internal/protocol/codec"
	"github.com/danmuck/chunkwire/internal/relay"
)

// CodecOptions maps the chunk bounds onto codec options.
func (cfg RelayConfig) CodecOptions() []codec.Option {
	return []codec.Option{codec.WithBounds(cfg.MinChunkSize, cfg.MaxChunkSize)}
}

// RelayOptions maps the relay settings onto relay options. The config is
// assumed to have passed ValidateRelayConfig.
func (cfg RelayConfig) RelayOptions() []relay.Option {
	ttl, _ := cfg.TTL()
	opts := []relay.Option{
		relay.WithMaxBodyBytes(cfg.MaxBodyBytes),
		relay.WithTransferTTL(ttl),
		relay.WithBasePath(cfg.BasePath),
	}
	if cfg.UploadDir != "" {
		opts = append(opts, relay.WithSink(relay.DirSink{Dir: cfg.UploadDir}))
	}
	return opts
}

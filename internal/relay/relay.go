package relay

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/chunkwire/internal/node"
	"github.com/danmuck/chunkwire/internal/observability"
	"github.com/danmuck/chunkwire/internal/protocol"
	"github.com/danmuck/chunkwire/internal/protocol/codec"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxBodyBytes = 4 << 20
	DefaultTransferTTL  = 10 * time.Minute
	version             = "0.1.0"
)

type Relay struct {
	ID       string
	Addr     string
	Appeared time.Time

	codec     *codec.Codec
	responder Responder
	sink      Sink
	collector *collector
	maxBody   int64
	logger    zerolog.Logger

	router         *gin.Engine
	basePath       string
	trustedProxies []string
}

var _ node.Node = (*Relay)(nil)

type Option func(*Relay)

func WithResponder(r Responder) Option {
	return func(rl *Relay) {
		rl.responder = r
	}
}

func WithSink(s Sink) Option {
	return func(rl *Relay) {
		rl.sink = s
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(rl *Relay) {
		if n > 0 {
			rl.maxBody = n
		}
	}
}

// WithTransferTTL sets how long an idle partial transfer is kept. Zero keeps
// it until commit or abort.
func WithTransferTTL(ttl time.Duration) Option {
	return func(rl *Relay) {
		rl.collector.ttl = ttl
	}
}

func WithBasePath(path string) Option {
	return func(rl *Relay) {
		rl.basePath = strings.TrimRight(path, "/")
	}
}

// WithTrustedProxies replaces the loopback proxies Appear trusts for
// client IP resolution.
func WithTrustedProxies(proxies ...string) Option {
	return func(rl *Relay) {
		rl.trustedProxies = proxies
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(rl *Relay) {
		rl.logger = logger
	}
}

// Appear builds a relay with its own gin engine, request logging, metrics
// and CORS.
func Appear(id, addr string, cd *codec.Codec, corsOrigins []string, opts ...Option) *Relay {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))
	rl := Attach(id, addr, cd, r, opts...)
	if err := r.SetTrustedProxies(rl.trustedProxies); err != nil {
		rl.logger.Warn().Err(err).Strs("proxies", rl.trustedProxies).Msg("set trusted proxies")
	}
	return rl
}

// Attach builds a relay on an existing router.
func Attach(id, addr string, cd *codec.Codec, router *gin.Engine, opts ...Option) *Relay {
	rl := &Relay{
		ID:        id,
		Addr:      addr,
		Appeared:  time.Now(),
		codec:     cd,
		sink:      &MemorySink{},
		collector: newCollector(DefaultTransferTTL),
		maxBody:   DefaultMaxBodyBytes,
		logger:    log.Logger,
		router:    router,

		trustedProxies: []string{"127.0.0.1", "::1"},
	}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.responder == nil {
		rl.responder = builtinCommands(rl)
	}
	rl.logger = rl.logger.With().Str("relay", id).Logger()
	return rl
}

func (r *Relay) NodeID() string {
	return r.ID
}

func (r *Relay) Kind() string {
	return "relay"
}

func (r *Relay) HTTPRouter() *gin.Engine {
	return r.router
}

func (r *Relay) Status() TransferStatus {
	return r.collector.Status()
}

func (r *Relay) RegisterRoutes() {
	routes := r.routes()
	routes.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(r.Appeared).String(),
			"service": r.ID,
			"version": version,
		})
	})

	routes.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"uptime":  time.Since(r.Appeared).String(),
			"service": r.ID,
			"version": version,
		})
	})

	routes.POST("/upload", r.handleUpload)
	routes.POST("/upload/commit", r.handleCommit)
	routes.GET("/upload", func(c *gin.Context) {
		c.JSON(http.StatusOK, r.collector.Status())
	})
	routes.DELETE("/upload", func(c *gin.Context) {
		dropped := r.collector.Reset()
		r.logger.Info().Int("dropped", dropped).Msg("transfer aborted")
		c.JSON(http.StatusOK, gin.H{"status": "aborted", "dropped": dropped})
	})
}

func (r *Relay) Serve() error {
	r.RegisterRoutes()
	r.logger.Info().Str("addr", r.Addr).Msg("relay listening")
	return r.router.Run(r.Addr)
}

func (r *Relay) handleUpload(c *gin.Context) {
	format, env, ok := r.readEnvelope(c)
	if !ok {
		return
	}
	msg, err := env.Message()
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	var text string
	switch m := msg.(type) {
	case protocol.Command:
		command, err := r.codec.ParseResponse(env)
		if err != nil {
			abortError(c, http.StatusBadRequest, err)
			return
		}
		text, err = r.responder.Respond(c.Request.Context(), command)
		if err != nil {
			r.logger.Warn().Err(err).Str("user_id", m.IDs.UserID).Msg("command rejected")
			status := http.StatusInternalServerError
			if errors.Is(err, ErrUnknownCommand) {
				status = http.StatusUnprocessableEntity
			}
			abortError(c, status, err)
			return
		}
	case protocol.FileChunk:
		expired, err := r.collector.Add(env)
		if expired {
			r.logger.Warn().Msg("idle transfer expired")
		}
		if err != nil {
			abortError(c, http.StatusConflict, err)
			return
		}
		r.logger.Debug().Uint32("sequence", m.Sequence).Int("bytes", len(m.Ciphertext)).Msg("chunk held")
		text = "ack " + strconv.FormatUint(uint64(m.Sequence), 10)
	}
	r.reply(c, format, env.IDs(), text)
}

func (r *Relay) handleCommit(c *gin.Context) {
	format, env, ok := r.readEnvelope(c)
	if !ok {
		return
	}
	if env.IsFileChunk() {
		abortError(c, http.StatusBadRequest, fmt.Errorf("%w: commit must be a command", protocol.ErrInvalidEnvelope))
		return
	}
	text, err := r.codec.ParseResponse(env)
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	count, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || count < 0 {
		abortError(c, http.StatusBadRequest, fmt.Errorf("relay: commit count %q", text))
		return
	}

	envs, err := r.collector.Take(count)
	if err != nil {
		abortError(c, http.StatusConflict, err)
		return
	}
	payload, err := r.codec.ReconstructFile(envs)
	if err != nil {
		r.logger.Error().Err(err).Int("chunks", len(envs)).Msg("reconstruction failed")
		abortError(c, http.StatusUnprocessableEntity, err)
		return
	}
	location, err := r.sink.Store(c.Request.Context(), payload)
	if err != nil {
		r.logger.Error().Err(err).Msg("store failed")
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	r.logger.Info().
		Int("chunks", len(envs)).
		Int("bytes", len(payload)).
		Str("location", location).
		Msg("transfer stored")
	r.reply(c, format, env.IDs(), fmt.Sprintf("stored %d bytes", len(payload)))
}

// readEnvelope decodes and validates the request body. On failure it has
// already written the error response.
func (r *Relay) readEnvelope(c *gin.Context) (protocol.Format, protocol.Envelope, bool) {
	format := protocol.JSON
	if ct := c.GetHeader("Content-Type"); ct != "" {
		f, err := protocol.FormatByContentType(ct)
		if err != nil {
			abortError(c, http.StatusUnsupportedMediaType, err)
			return nil, protocol.Envelope{}, false
		}
		format = f
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, r.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortError(c, http.StatusRequestEntityTooLarge, err)
			return nil, protocol.Envelope{}, false
		}
		abortError(c, http.StatusBadRequest, err)
		return nil, protocol.Envelope{}, false
	}
	env, err := format.Unmarshal(body)
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return nil, protocol.Envelope{}, false
	}
	if err := env.Validate(); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return nil, protocol.Envelope{}, false
	}
	return format, env, true
}

func (r *Relay) reply(c *gin.Context, format protocol.Format, to protocol.IDs, text string) {
	env, err := r.codec.PrepareResponse(to, text)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	raw, err := format.Marshal(env)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, format.ContentType(), raw)
}

func abortError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (r *Relay) routes() gin.IRoutes {
	if r.basePath == "" {
		return r.router
	}
	return r.router.Group(r.basePath)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

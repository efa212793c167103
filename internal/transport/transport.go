// Package transport delivers one envelope to an endpoint and returns the
// envelope it answers with.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/chunkwire/internal/observability"
	"github.com/danmuck/chunkwire/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxResponseBytes = 8 << 20
)

var (
	ErrUnexpectedStatus = errors.New("transport: unexpected status")
	ErrResponseTooLarge = errors.New("transport: response too large")
)

// Sender is the request/response collaborator used by transfers.
type Sender interface {
	Send(ctx context.Context, endpoint string, env protocol.Envelope) (protocol.Envelope, error)
}

// Func adapts a function to Sender.
type Func func(ctx context.Context, endpoint string, env protocol.Envelope) (protocol.Envelope, error)

func (f Func) Send(ctx context.Context, endpoint string, env protocol.Envelope) (protocol.Envelope, error) {
	return f(ctx, endpoint, env)
}

// StatusError reports a non-2xx reply. Body holds at most the first KiB.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("transport: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("transport: unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// HTTP posts envelopes in one wire format.
type HTTP struct {
	client   *http.Client
	format   protocol.Format
	maxBytes int64
	headers  http.Header
	logger   zerolog.Logger
}

type Option func(*HTTP)

func WithClient(client *http.Client) Option {
	return func(h *HTTP) {
		if client != nil {
			h.client = client
		}
	}
}

func WithFormat(format protocol.Format) Option {
	return func(h *HTTP) {
		if format != nil {
			h.format = format
		}
	}
}

func WithMaxResponseBytes(n int64) Option {
	return func(h *HTTP) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(h *HTTP) {
		h.headers.Add(key, value)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(h *HTTP) {
		h.logger = logger
	}
}

func NewHTTP(opts ...Option) *HTTP {
	h := &HTTP{
		client:   &http.Client{Timeout: DefaultTimeout},
		format:   protocol.JSON,
		maxBytes: DefaultMaxResponseBytes,
		headers:  make(http.Header),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With().Str("component", "transport").Str("format", h.format.Name()).Logger()
	return h
}

func (h *HTTP) Format() protocol.Format {
	return h.format
}

// Send posts env to endpoint and decodes the reply. The reply is decoded
// with the format named by its Content-Type, falling back to the request
// format when the header is absent or unknown.
func (h *HTTP) Send(ctx context.Context, endpoint string, env protocol.Envelope) (protocol.Envelope, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return protocol.Envelope{}, fmt.Errorf("transport: endpoint required")
	}
	if err := ctx.Err(); err != nil {
		return protocol.Envelope{}, err
	}

	body, err := h.format.Marshal(env)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("transport: marshal envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("transport: build request: %w", err)
	}
	for key, values := range h.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", h.format.ContentType())
	req.Header.Set("Accept", h.format.ContentType())

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		observability.RecordTransportSend(h.format.Name(), 0, time.Since(start), false)
		h.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("send failed")
		return protocol.Envelope{}, fmt.Errorf("transport: post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	reply, err := h.readReply(resp)
	observability.RecordTransportSend(h.format.Name(), resp.StatusCode, time.Since(start), err == nil)
	if err != nil {
		h.logger.Debug().Err(err).Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("reply rejected")
		return protocol.Envelope{}, err
	}
	h.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Int("request_bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("envelope sent")
	return reply, nil
}

func (h *HTTP) readReply(resp *http.Response) (protocol.Envelope, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return protocol.Envelope{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("transport: read reply: %w", err)
	}
	if int64(len(raw)) > h.maxBytes {
		return protocol.Envelope{}, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, h.maxBytes)
	}
	format := h.format
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if f, err := protocol.FormatByContentType(ct); err == nil {
			format = f
		}
	}
	env, err := format.Unmarshal(raw)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("transport: decode reply: %w", err)
	}
	return env, nil
}

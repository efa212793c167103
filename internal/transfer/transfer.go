// Package transfer drives command round trips and chunked uploads over a
// transport.Sender.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/chunkwire/internal/protocol"
	"github.com/danmuck/chunkwire/internal/protocol/codec"
	"github.com/danmuck/chunkwire/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CommitSuffix is appended to the upload endpoint to form the default
// commit endpoint.
const CommitSuffix = "/commit"

var ErrChunkFailed = errors.New("transfer: chunk failed")

// ChunkError reports the first chunk that could not be delivered. It matches
// both ErrChunkFailed and the underlying transport error.
type ChunkError struct {
	Sequence uint32
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("transfer: chunk %d failed: %v", e.Sequence, e.Err)
}

func (e *ChunkError) Unwrap() []error {
	return []error{ErrChunkFailed, e.Err}
}

// Progress is called after each chunk is acknowledged with the size of the
// ciphertext that was sent.
type Progress func(sequence uint32, sentBytes int)

// Result summarizes one completed upload.
type Result struct {
	Chunks    int
	Bytes     int
	Committed string
	Duration  time.Duration
}

type Client struct {
	codec          *codec.Codec
	sender         transport.Sender
	endpoint       string
	commitEndpoint string
	progress       Progress
	logger         zerolog.Logger
}

type Option func(*Client)

// WithCommitEndpoint overrides the endpoint used to finish uploads.
func WithCommitEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.commitEndpoint = strings.TrimSpace(endpoint)
	}
}

func WithProgress(fn Progress) Option {
	return func(c *Client) {
		c.progress = fn
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(cd *codec.Codec, sender transport.Sender, endpoint string, opts ...Option) (*Client, error) {
	if cd == nil {
		return nil, fmt.Errorf("transfer: codec required")
	}
	if sender == nil {
		return nil, fmt.Errorf("transfer: sender required")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("transfer: endpoint required")
	}
	c := &Client{
		codec:          cd,
		sender:         sender,
		endpoint:       endpoint,
		commitEndpoint: strings.TrimRight(endpoint, "/") + CommitSuffix,
		logger:         log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "transfer").Logger()
	return c, nil
}

// Command sends one encrypted command and returns the decrypted reply.
// Transport errors are returned wrapped but otherwise unchanged.
func (c *Client) Command(ctx context.Context, command string) (string, error) {
	env, err := c.codec.PrepareCommand(command)
	if err != nil {
		return "", err
	}
	reply, err := c.sender.Send(ctx, c.endpoint, env)
	if err != nil {
		return "", fmt.Errorf("transfer: send command: %w", err)
	}
	return c.codec.ParseResponse(reply)
}

// Upload sends every chunk of payload in sequence order and stops at the
// first failure; later chunks are never built or sent. Each ack reply must
// decrypt. When commit is true, the relay is then asked to rebuild the file.
func (c *Client) Upload(ctx context.Context, payload []byte, commit bool) (Result, error) {
	start := time.Now()
	res := Result{}
	var seq uint32
	for env, err := range c.codec.FileTransfer(payload) {
		if err != nil {
			return res, err
		}
		seq, _ = env.Sequence()
		reply, err := c.sender.Send(ctx, c.endpoint, env)
		if err != nil {
			c.logger.Warn().Err(err).Uint32("sequence", seq).Msg("chunk send failed; aborting transfer")
			return res, &ChunkError{Sequence: seq, Err: err}
		}
		if _, err := c.codec.ParseResponse(reply); err != nil {
			return res, &ChunkError{Sequence: seq, Err: err}
		}
		res.Chunks++
		if c.progress != nil {
			c.progress(seq, chunkLen(env))
		}
	}
	res.Bytes = len(payload)

	if commit {
		ack, err := c.Commit(ctx, res.Chunks)
		if err != nil {
			return res, err
		}
		res.Committed = ack
	}
	res.Duration = time.Since(start)
	c.logger.Info().
		Int("chunks", res.Chunks).
		Int("bytes", res.Bytes).
		Dur("duration", res.Duration).
		Msg("upload complete")
	return res, nil
}

// Commit tells the relay how many chunks were sent and returns its reply.
func (c *Client) Commit(ctx context.Context, chunks int) (string, error) {
	env, err := c.codec.PrepareCommand(strconv.Itoa(chunks))
	if err != nil {
		return "", err
	}
	reply, err := c.sender.Send(ctx, c.commitEndpoint, env)
	if err != nil {
		return "", fmt.Errorf("transfer: commit: %w", err)
	}
	return c.codec.ParseResponse(reply)
}

func chunkLen(env protocol.Envelope) int {
	raw, err := env.Ciphertext()
	if err != nil {
		return 0
	}
	return len(raw)
}

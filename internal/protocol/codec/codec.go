package codec

import (
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/danmuck/chunkwire/internal/chunker"
	"github.com/danmuck/chunkwire/internal/cipher"
	"github.com/danmuck/chunkwire/internal/ident"
	"github.com/danmuck/chunkwire/internal/observability"
	"github.com/danmuck/chunkwire/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Codec struct {
	cipher  cipher.Cipher
	ids     ident.Generator
	chunker *chunker.Chunker
	logger  zerolog.Logger
}

type options struct {
	minSize int
	maxSize int
	rng     *rand.Rand
	logger  *zerolog.Logger
}

type Option func(*options)

// WithBounds sets the chunk size range used for file transfers.
func WithBounds(minSize, maxSize int) Option {
	return func(o *options) {
		o.minSize = minSize
		o.maxSize = maxSize
	}
}

// WithRand fixes the random source for chunk size draws. The codec
// serializes access to it, so one Codec may serve concurrent transfers.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		o.rng = rng
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// New builds a Codec over an already keyed cipher and an identifier source.
func New(c cipher.Cipher, ids ident.Generator, opts ...Option) (*Codec, error) {
	if c == nil {
		return nil, fmt.Errorf("codec: nil cipher")
	}
	if ids == nil {
		return nil, fmt.Errorf("codec: nil identifier generator")
	}
	o := options{
		minSize: chunker.DefaultMinChunkSize,
		maxSize: chunker.DefaultMaxChunkSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var chunkOpts []chunker.Option
	if o.rng != nil {
		chunkOpts = append(chunkOpts, chunker.WithRand(rand.New(&lockedSource{src: o.rng})))
	}
	ch, err := chunker.New(o.minSize, o.maxSize, chunkOpts...)
	if err != nil {
		return nil, err
	}

	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}
	return &Codec{
		cipher:  c,
		ids:     ids,
		chunker: ch,
		logger:  logger.With().Str("component", "codec").Logger(),
	}, nil
}

// Bounds reports the configured chunk size range.
func (c *Codec) Bounds() (minSize, maxSize int) {
	return c.chunker.Bounds()
}

func (c *Codec) newIDs() protocol.IDs {
	return protocol.IDs{UserID: c.ids.NewID(), SessionID: c.ids.NewID()}
}

// PrepareCommand encrypts command and wraps it in an envelope with fresh
// identifiers and no sequence.
func (c *Codec) PrepareCommand(command string) (protocol.Envelope, error) {
	ciphertext, err := c.cipher.Encrypt([]byte(command))
	if err != nil {
		c.logger.Debug().Err(err).Msg("encrypt command")
		return protocol.Envelope{}, fmt.Errorf("%w: encrypt command: %w", ErrEncode, err)
	}
	env := protocol.NewCommandEnvelope(c.newIDs(), ciphertext)
	observability.RecordEnvelopes("built", observability.KindCommand, 1)
	c.logger.Debug().
		Str("user_id", env.Metadata.UserID).
		Int("command_len", len(command)).
		Msg("prepared command")
	return env, nil
}

// PrepareResponse encrypts text as a reply that carries the correlation
// tokens of the request it answers.
func (c *Codec) PrepareResponse(to protocol.IDs, text string) (protocol.Envelope, error) {
	ciphertext, err := c.cipher.Encrypt([]byte(text))
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("%w: encrypt response: %w", ErrEncode, err)
	}
	observability.RecordEnvelopes("built", observability.KindCommand, 1)
	return protocol.NewCommandEnvelope(to, ciphertext), nil
}

// ParseResponse decrypts the data field of a response envelope. Only data is
// read; correlation fields and action are ignored.
func (c *Codec) ParseResponse(env protocol.Envelope) (string, error) {
	ciphertext, err := env.Ciphertext()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	plaintext, err := c.cipher.Decrypt(ciphertext)
	if err != nil {
		c.logger.Debug().Err(err).Msg("decrypt response")
		return "", fmt.Errorf("%w: decrypt response: %w", ErrDecode, err)
	}
	observability.RecordEnvelopes("parsed", observability.KindCommand, 1)
	return string(plaintext), nil
}

// FileTransfer lazily yields one envelope per chunk of payload, with
// sequences 0, 1, 2 and so on. An encryption failure is yielded once with a
// zero envelope and ends the sequence. Each range over the result draws new
// chunk sizes and identifiers.
func (c *Codec) FileTransfer(payload []byte) iter.Seq2[protocol.Envelope, error] {
	return func(yield func(protocol.Envelope, error) bool) {
		var n uint64
		for chunk := range c.chunker.Split(payload) {
			if n > math.MaxUint32 {
				yield(protocol.Envelope{}, fmt.Errorf("%w: sequence overflow", ErrEncode))
				return
			}
			env, err := c.chunkEnvelope(uint32(n), chunk)
			if err != nil {
				yield(protocol.Envelope{}, err)
				return
			}
			observability.RecordEnvelopes("built", observability.KindFileChunk, 1)
			if !yield(env, nil) {
				return
			}
			n++
		}
		observability.RecordPayloadBytes("split", len(payload))
	}
}

func (c *Codec) chunkEnvelope(seq uint32, chunk []byte) (protocol.Envelope, error) {
	ciphertext, err := c.cipher.Encrypt(chunk)
	if err != nil {
		c.logger.Debug().Err(err).Uint32("sequence", seq).Msg("encrypt chunk")
		return protocol.Envelope{}, fmt.Errorf("%w: encrypt chunk %d: %w", ErrEncode, seq, err)
	}
	return protocol.NewFileChunkEnvelope(c.newIDs(), seq, ciphertext), nil
}

// PrepareFileTransfer collects FileTransfer into a slice. The envelope count
// equals the chunk count; an empty payload yields no envelopes.
func (c *Codec) PrepareFileTransfer(payload []byte) ([]protocol.Envelope, error) {
	minSize, _ := c.chunker.Bounds()
	envs := make([]protocol.Envelope, 0, len(payload)/minSize+1)
	for env, err := range c.FileTransfer(payload) {
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	c.logger.Debug().
		Int("payload_bytes", len(payload)).
		Int("chunks", len(envs)).
		Msg("prepared file transfer")
	return envs, nil
}

// ReconstructFile rebuilds a payload from its chunk envelopes in any order.
// Every envelope must carry a sequence, and the sequences must be exactly
// 0..n-1. The caller's slice is left untouched. Any decryption failure fails
// the whole call.
func (c *Codec) ReconstructFile(envs []protocol.Envelope) ([]byte, error) {
	for i, env := range envs {
		if !env.IsFileChunk() {
			return nil, fmt.Errorf("%w: envelope %d", ErrMissingSequence, i)
		}
	}

	ordered := slices.Clone(envs)
	slices.SortStableFunc(ordered, func(a, b protocol.Envelope) int {
		x, _ := a.Sequence()
		y, _ := b.Sequence()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	})

	for i, env := range ordered {
		seq, _ := env.Sequence()
		if i > 0 {
			if prev, _ := ordered[i-1].Sequence(); prev == seq {
				return nil, fmt.Errorf("%w: %d", ErrDuplicateSequence, seq)
			}
		}
		if uint64(seq) != uint64(i) {
			return nil, fmt.Errorf("%w: expected sequence %d, found %d", ErrSequenceGap, i, seq)
		}
	}

	chunks := make([][]byte, 0, len(ordered))
	for _, env := range ordered {
		seq, _ := env.Sequence()
		ciphertext, err := env.Ciphertext()
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", ErrDecode, seq, err)
		}
		plaintext, err := c.cipher.Decrypt(ciphertext)
		if err != nil {
			c.logger.Debug().Err(err).Uint32("sequence", seq).Msg("decrypt chunk")
			return nil, fmt.Errorf("%w: decrypt chunk %d: %w", ErrDecode, seq, err)
		}
		if plaintext == nil {
			plaintext = []byte{}
		}
		chunks = append(chunks, plaintext)
	}

	payload, err := chunker.Join(chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	observability.RecordEnvelopes("parsed", observability.KindFileChunk, len(ordered))
	observability.RecordPayloadBytes("reconstructed", len(payload))
	c.logger.Debug().
		Int("chunks", len(ordered)).
		Int("payload_bytes", len(payload)).
		Msg("reconstructed file")
	return payload, nil
}

// lockedSource serializes a shared random source.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

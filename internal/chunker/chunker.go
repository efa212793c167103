// Package chunker splits payloads into randomly sized chunks and joins them back.
//
// Chunk lengths are drawn uniformly from an inclusive [min, max] range so a
// transfer has no fixed block boundary. Only the final chunk of a payload may
// be shorter than min.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"
)

const (
	DefaultMinChunkSize = 512 * 1024
	DefaultMaxChunkSize = 1024 * 1024
)

var (
	ErrInvalidInputKind = errors.New("chunker: input is not byte data")
	ErrInvalidBounds    = errors.New("chunker: invalid chunk size bounds")
)

// Chunker holds validated size bounds and the random source used for draws.
type Chunker struct {
	min int
	max int
	rng *rand.Rand
}

type Option func(*Chunker)

// WithRand sets the random source. A *rand.Rand is not safe for concurrent
// use; callers sharing one across goroutines must serialize Split calls.
func WithRand(rng *rand.Rand) Option {
	return func(c *Chunker) {
		c.rng = rng
	}
}

// New validates min and max and returns a Chunker drawing from the
// package-level random source unless WithRand is given.
func New(minSize, maxSize int, opts ...Option) (*Chunker, error) {
	if err := ValidateBounds(minSize, maxSize); err != nil {
		return nil, err
	}
	c := &Chunker{min: minSize, max: maxSize}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Default returns a Chunker using DefaultMinChunkSize and DefaultMaxChunkSize.
func Default() *Chunker {
	return &Chunker{min: DefaultMinChunkSize, max: DefaultMaxChunkSize}
}

func ValidateBounds(minSize, maxSize int) error {
	if minSize <= 0 {
		return fmt.Errorf("%w: min_chunk_size must be positive, got %d", ErrInvalidBounds, minSize)
	}
	if maxSize <= 0 {
		return fmt.Errorf("%w: max_chunk_size must be positive, got %d", ErrInvalidBounds, maxSize)
	}
	if minSize > maxSize {
		return fmt.Errorf("%w: min_chunk_size %d exceeds max_chunk_size %d", ErrInvalidBounds, minSize, maxSize)
	}
	return nil
}

func (c *Chunker) Bounds() (minSize, maxSize int) {
	return c.min, c.max
}

// Split returns a lazy sequence of chunks covering payload in order. Every
// range over the sequence starts again at offset zero with fresh draws.
// Chunks alias payload; the caller must not modify payload while ranging.
func (c *Chunker) Split(payload []byte) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for offset := 0; offset < len(payload); {
			end := min(offset+c.draw(), len(payload))
			if !yield(payload[offset:end:end]) {
				return
			}
			offset = end
		}
	}
}

// Plan returns the chunk lengths Split would produce for a payload of n
// bytes, using the same draw loop but without touching any data.
func (c *Chunker) Plan(n int) []int {
	sizes := make([]int, 0, n/c.min+1)
	for offset := 0; offset < n; {
		size := min(c.draw(), n-offset)
		sizes = append(sizes, size)
		offset += size
	}
	return sizes
}

// SplitValue is Split for callers holding an untyped value, such as a decoded
// document field. Anything other than []byte fails with ErrInvalidInputKind.
func (c *Chunker) SplitValue(v any) (iter.Seq[[]byte], error) {
	payload, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidInputKind, v)
	}
	return c.Split(payload), nil
}

func (c *Chunker) draw() int {
	span := c.max - c.min + 1
	if c.rng != nil {
		return c.min + c.rng.IntN(span)
	}
	return c.min + rand.IntN(span)
}

// Split validates the bounds and splits payload with the package-level
// random source.
func Split(payload []byte, minSize, maxSize int) (iter.Seq[[]byte], error) {
	c, err := New(minSize, maxSize)
	if err != nil {
		return nil, err
	}
	return c.Split(payload), nil
}

// Join concatenates chunks in the order given. It does not sort. A nil
// element is a missing chunk rather than byte data and fails with
// ErrInvalidInputKind.
func Join(chunks [][]byte) ([]byte, error) {
	total := 0
	for i, chunk := range chunks {
		if chunk == nil {
			return nil, fmt.Errorf("%w: chunk %d is nil", ErrInvalidInputKind, i)
		}
		total += len(chunk)
	}
	out := make([]byte, 0, total)
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	return out, nil
}

// JoinValues is Join for untyped elements.
func JoinValues(values []any) ([]byte, error) {
	chunks := make([][]byte, 0, len(values))
	for i, v := range values {
		chunk, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: chunk %d is %T", ErrInvalidInputKind, i, v)
		}
		chunks = append(chunks, chunk)
	}
	return Join(chunks)
}

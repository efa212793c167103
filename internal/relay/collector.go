package relay

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/chunkwire/internal/protocol"
)

var (
	ErrTransferInProgress = errors.New("relay: transfer in progress")
	ErrNothingToCommit    = errors.New("relay: nothing to commit")
	ErrCountMismatch      = errors.New("relay: chunk count mismatch")
)

// TransferStatus describes the chunks currently held.
type TransferStatus struct {
	Chunks    int       `json:"chunks"`
	DataBytes int       `json:"data_bytes"`
	Started   time.Time `json:"started,omitzero"`
	Touched   time.Time `json:"touched,omitzero"`
}

// collector holds the chunks of the one in-flight transfer. A transfer left
// idle for longer than ttl is dropped by the next Add.
type collector struct {
	mu      sync.Mutex
	chunks  map[uint32]protocol.Envelope
	bytes   int
	started time.Time
	touched time.Time
	ttl     time.Duration
	now     func() time.Time
}

func newCollector(ttl time.Duration) *collector {
	return &collector{
		chunks: make(map[uint32]protocol.Envelope),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Add stores a chunk envelope. A sequence that is already held means a
// second transfer overlaps the current one and is rejected. It reports
// whether a stale transfer was dropped first.
func (c *collector) Add(env protocol.Envelope) (expired bool, err error) {
	seq, ok := env.Sequence()
	if !ok {
		return false, fmt.Errorf("%w: envelope has no sequence", protocol.ErrInvalidEnvelope)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.chunks) > 0 && c.ttl > 0 && now.Sub(c.touched) > c.ttl {
		c.resetLocked()
		expired = true
	}
	if _, held := c.chunks[seq]; held {
		return expired, fmt.Errorf("%w: sequence %d already held", ErrTransferInProgress, seq)
	}
	if len(c.chunks) == 0 {
		c.started = now
	}
	c.chunks[seq] = env
	if env.Data != nil {
		c.bytes += len(*env.Data)
	}
	c.touched = now
	return expired, nil
}

// Take removes and returns the held chunks when their number equals count.
// On mismatch nothing is removed.
func (c *collector) Take(count int) ([]protocol.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.chunks) == 0 && count > 0 {
		return nil, fmt.Errorf("%w: expected %d chunks, none held", ErrNothingToCommit, count)
	}
	if len(c.chunks) != count {
		return nil, fmt.Errorf("%w: expected %d, holding %d", ErrCountMismatch, count, len(c.chunks))
	}
	seqs := make([]uint32, 0, len(c.chunks))
	for seq := range c.chunks {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	out := make([]protocol.Envelope, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, c.chunks[seq])
	}
	c.resetLocked()
	return out, nil
}

// Reset drops every held chunk and returns how many there were.
func (c *collector) Reset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.chunks)
	c.resetLocked()
	return n
}

func (c *collector) Status() TransferStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TransferStatus{
		Chunks:    len(c.chunks),
		DataBytes: c.bytes,
		Started:   c.started,
		Touched:   c.touched,
	}
}

func (c *collector) resetLocked() {
	clear(c.chunks)
	c.bytes = 0
	c.started = time.Time{}
	c.touched = time.Time{}
}

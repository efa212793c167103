package relay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives every reconstructed payload and returns where it went.
type Sink interface {
	Store(ctx context.Context, payload []byte) (string, error)
}

// DirSink writes each payload to a new file in Dir.
type DirSink struct {
	Dir string
}

func (s DirSink) Store(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return "", fmt.Errorf("relay: create upload dir: %w", err)
	}
	f, err := os.CreateTemp(s.Dir, "upload-*.bin")
	if err != nil {
		return "", fmt.Errorf("relay: create upload file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("relay: write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("relay: close upload file: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}

// MemorySink keeps payloads in memory.
type MemorySink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *MemorySink) Store(_ context.Context, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return fmt.Sprintf("memory:%d", len(s.payloads)-1), nil
}

func (s *MemorySink) Payloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.payloads))
	copy(out, s.payloads)
	return out
}

// Package fakes holds deterministic stand-ins for the cipher and identifier
// collaborators.
package fakes

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

var ErrInjected = errors.New("fakes: injected failure")

var sealPrefix = []byte("sealed:")

// Cipher prefixes plaintext with a marker and XORs it with Mask. Decrypt
// rejects anything that lacks the marker.
type Cipher struct {
	Mask byte

	mu sync.Mutex
	// FailEncryptAt makes the n-th Encrypt call (1-based) fail. Zero disables it.
	FailEncryptAt int
	// FailDecrypt makes Decrypt fail when it returns true for the input.
	FailDecrypt func(ciphertext []byte) bool

	encrypts int
}

func NewCipher() *Cipher {
	return &Cipher{Mask: 0x5a}
}

func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	c.mu.Lock()
	c.encrypts++
	n := c.encrypts
	failAt := c.FailEncryptAt
	c.mu.Unlock()
	if failAt > 0 && n == failAt {
		return nil, fmt.Errorf("%w: encrypt call %d", ErrInjected, n)
	}
	out := make([]byte, 0, len(sealPrefix)+len(plaintext))
	out = append(out, sealPrefix...)
	for _, b := range plaintext {
		out = append(out, b^c.Mask)
	}
	return out, nil
}

func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if c.FailDecrypt != nil && c.FailDecrypt(ciphertext) {
		return nil, fmt.Errorf("%w: decrypt", ErrInjected)
	}
	if !bytes.HasPrefix(ciphertext, sealPrefix) {
		return nil, fmt.Errorf("%w: missing seal marker", ErrInjected)
	}
	body := ciphertext[len(sealPrefix):]
	out := make([]byte, len(body))
	for i, b := range body {
		out[i] = b ^ c.Mask
	}
	return out, nil
}

// EncryptCalls reports how many times Encrypt ran.
func (c *Cipher) EncryptCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encrypts
}

// IDs hands out "<prefix>-<n>" tokens with a process-local counter.
type IDs struct {
	Prefix string

	mu   sync.Mutex
	next int
}

func NewIDs(prefix string) *IDs {
	return &IDs{Prefix: prefix}
}

func (g *IDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.Prefix, g.next)
}

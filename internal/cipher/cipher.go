// Package cipher provides the symmetric encryption collaborator used by the
// codec. Keys are 32 bytes; ciphertexts carry their nonce as a prefix.
package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const KeySize = chacha20poly1305.KeySize

// Overhead is the number of bytes AEAD adds to a plaintext: nonce plus tag.
const Overhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var (
	ErrInvalidKey         = errors.New("cipher: invalid key")
	ErrCiphertextTooShort = errors.New("cipher: ciphertext too short")
	ErrAuthentication     = errors.New("cipher: message authentication failed")
)

// Cipher encrypts and decrypts opaque byte sequences with a preconfigured key.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AEAD is XChaCha20-Poly1305 with a random nonce per message.
type AEAD struct {
	aead stdcipher.AEAD
}

func NewAEAD(key []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &AEAD{aead: aead}, nil
}

func (a *AEAD) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, a.aead.NonceSize(), a.aead.NonceSize()+len(plaintext)+a.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cipher: nonce: %w", err)
	}
	return a.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (a *AEAD) Decrypt(ciphertext []byte) ([]byte, error) {
	ns := a.aead.NonceSize()
	if len(ciphertext) < ns+a.aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes", ErrCiphertextTooShort, len(ciphertext))
	}
	nonce, sealed := ciphertext[:ns], ciphertext[ns:]
	plaintext, err := a.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

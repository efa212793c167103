package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ActionUploadChunk tags every envelope, commands and file chunks alike.
const ActionUploadChunk = "upload_chunk"

// EnvelopeOverhead bounds what any wire format adds around the encoded data,
// assuming UUID-sized correlation tokens.
const EnvelopeOverhead = 1 << 10

// EncodedSize is the largest wire size of an envelope carrying ciphertextLen
// bytes of ciphertext.
func EncodedSize(ciphertextLen int) int64 {
	return int64(base64.StdEncoding.EncodedLen(ciphertextLen)) + EnvelopeOverhead
}

// Metadata carries per-envelope correlation tokens. Sequence is set only on
// file-transfer chunks.
type Metadata struct {
	UserID    string  `json:"user_id" cbor:"user_id"`
	SessionID string  `json:"session_id" cbor:"session_id"`
	Sequence  *uint32 `json:"sequence,omitempty" cbor:"sequence,omitempty"`
}

// Envelope is the unit exchanged over the transport. Data is nil when the
// field is absent; an empty string is an empty ciphertext.
type Envelope struct {
	Action   string   `json:"action" cbor:"action"`
	Metadata Metadata `json:"metadata" cbor:"metadata"`
	Data     *string  `json:"data,omitempty" cbor:"data,omitempty"`
}

// IDs are the two correlation tokens attached to one envelope.
type IDs struct {
	UserID    string
	SessionID string
}

func (e Envelope) IDs() IDs {
	return IDs{UserID: e.Metadata.UserID, SessionID: e.Metadata.SessionID}
}

// Sequence reports the chunk index and whether one is present.
func (e Envelope) Sequence() (uint32, bool) {
	if e.Metadata.Sequence == nil {
		return 0, false
	}
	return *e.Metadata.Sequence, true
}

func (e Envelope) IsFileChunk() bool {
	return e.Metadata.Sequence != nil
}

// SetData stores encoded as the data field, marking it present.
func (e *Envelope) SetData(encoded string) {
	e.Data = &encoded
}

// Ciphertext decodes the data field. Only an absent field is missing; a
// present empty field decodes to an empty ciphertext.
func (e Envelope) Ciphertext() ([]byte, error) {
	if e.Data == nil {
		return nil, ErrMissingData
	}
	raw, err := base64.StdEncoding.DecodeString(*e.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	return raw, nil
}

// Validate enforces the fields every well-formed envelope carries.
func (e Envelope) Validate() error {
	if e.Action != ActionUploadChunk {
		return fmt.Errorf("%w: unexpected action %q", ErrInvalidEnvelope, e.Action)
	}
	if strings.TrimSpace(e.Metadata.UserID) == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(e.Metadata.SessionID) == "" {
		return fmt.Errorf("%w: missing session_id", ErrInvalidEnvelope)
	}
	if e.Data == nil {
		return fmt.Errorf("%w: missing data", ErrInvalidEnvelope)
	}
	return nil
}

func encodeData(ciphertext []byte) *string {
	encoded := base64.StdEncoding.EncodeToString(ciphertext)
	return &encoded
}

package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/chunkwire/internal/protocol/tlv"
	"github.com/danmuck/chunkwire/internal/testutil/testlog"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testlog.Start(t)

	payload := tlv.EncodeFields([]tlv.Field{tlv.String(1, "upload_chunk")})
	raw, err := Encode(New(2, payload), DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(raw) != HeaderLen+len(payload) {
		t.Fatalf("unexpected frame length: %d", len(raw))
	}
	out, err := Decode(raw, DefaultLimits())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Header.Magic != Magic || out.Header.Version != Version || out.Header.MessageType != 2 {
		t.Fatalf("header mismatch: %+v", out.Header)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestDecodeMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)

	if _, err := Decode([]byte{1, 2, 3}, DefaultLimits()); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestDecodeRejectsForeignAndFutureFrames(t *testing.T) {
	testlog.Start(t)

	foreign := EncodeHeader(Header{Magic: 0xEDCE1001, Version: Version})
	if _, err := Decode(foreign, DefaultLimits()); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	future := EncodeHeader(Header{Magic: Magic, Version: Version + 1})
	if _, err := Decode(future, DefaultLimits()); !errors.Is(err, ErrVersion) {
		t.Fatalf("expected ErrVersion, got %v", err)
	}
}

func TestDecodeLengthChecks(t *testing.T) {
	testlog.Start(t)

	raw, err := Encode(New(1, []byte("abcdef")), DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(raw[:len(raw)-1], DefaultLimits()); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch for truncation, got %v", err)
	}
	if _, err := Decode(append(raw, 0), DefaultLimits()); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch for trailing bytes, got %v", err)
	}
	if _, err := Decode(raw, Limits{MaxPayloadBytes: 4}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := Encode(New(1, []byte("abcdef")), Limits{MaxPayloadBytes: 4}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on encode, got %v", err)
	}
}

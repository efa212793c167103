package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/danmuck/chunkwire/internal/protocol/frame"
	"github.com/danmuck/chunkwire/internal/protocol/schema"
	"github.com/danmuck/chunkwire/internal/protocol/tlv"
	"github.com/danmuck/chunkwire/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func sampleCommand() Command {
	return Command{
		IDs:        IDs{UserID: "6f1c7c1e-user", SessionID: "0b9e2f4a-session"},
		Ciphertext: []byte("sealed command"),
	}
}

func sampleChunk(seq uint32) FileChunk {
	return FileChunk{
		IDs:        IDs{UserID: "u-chunk", SessionID: "s-chunk"},
		Sequence:   seq,
		Ciphertext: []byte{0x00, 0xff, 0x10, byte(seq)},
	}
}

func TestFormatsRoundTripBothVariants(t *testing.T) {
	testlog.Start(t)

	for _, f := range []Format{JSON, CBOR, TLV} {
		t.Run(f.Name(), func(t *testing.T) {
			for _, msg := range []Message{sampleCommand(), sampleChunk(0), sampleChunk(41)} {
				raw, err := f.Marshal(msg.Envelope())
				require.NoError(t, err)

				env, err := f.Unmarshal(raw)
				require.NoError(t, err)
				require.NoError(t, env.Validate())

				got, err := env.Message()
				require.NoError(t, err)
				require.Equal(t, msg, got)
			}
		})
	}
}

func TestJSONMatchesWireSchema(t *testing.T) {
	testlog.Start(t)

	raw, err := JSON.Marshal(sampleCommand().Envelope())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Equal(t, "upload_chunk", doc["action"])
	meta, ok := doc["metadata"].(map[string]any)
	require.True(t, ok, "metadata must be an object")
	require.Equal(t, "6f1c7c1e-user", meta["user_id"])
	require.Equal(t, "0b9e2f4a-session", meta["session_id"])
	_, hasSeq := meta["sequence"]
	require.False(t, hasSeq, "command envelopes must omit sequence")
	require.Equal(t, "c2VhbGVkIGNvbW1hbmQ=", doc["data"])

	raw, err = JSON.Marshal(sampleChunk(0).Envelope())
	require.NoError(t, err)
	require.Contains(t, string(raw), `"sequence":0`)
}

func TestFormatLookup(t *testing.T) {
	testlog.Start(t)

	f, err := FormatByName("")
	require.NoError(t, err)
	require.Equal(t, "json", f.Name())

	f, err = FormatByName(" CBOR ")
	require.NoError(t, err)
	require.Equal(t, ContentTypeCBOR, f.ContentType())

	_, err = FormatByName("xml")
	require.ErrorIs(t, err, ErrUnknownFormat)

	f, err = FormatByContentType("application/json; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, JSON, f)

	f, err = FormatByContentType(ContentTypeTLV)
	require.NoError(t, err)
	require.Equal(t, TLV, f)

	_, err = FormatByContentType("text/plain")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	testlog.Start(t)

	_, err := JSON.Unmarshal([]byte("{not json"))
	require.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = JSON.Unmarshal([]byte(`{"metadata":{"sequence":-1}}`))
	require.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = CBOR.Unmarshal([]byte{0xff, 0x00})
	require.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = TLV.Unmarshal([]byte{0x00, 0x01})
	require.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestTLVUnmarshalReportsSchemaViolation(t *testing.T) {
	testlog.Start(t)

	fields := []tlv.Field{
		tlv.String(schema.FieldAction, ActionUploadChunk),
		tlv.String(schema.FieldUserID, "u"),
		tlv.String(schema.FieldSessionID, "s"),
	}
	raw, err := frame.Encode(frame.New(uint16(schema.MsgCommand), tlv.EncodeFields(fields)), frame.DefaultLimits())
	require.NoError(t, err)

	_, err = TLV.Unmarshal(raw)
	require.ErrorIs(t, err, ErrInvalidEnvelope)

	var ve schema.ValidationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, schema.FieldData, ve.FieldID)
}

func TestTLVUnmarshalRejectsKindMismatch(t *testing.T) {
	testlog.Start(t)

	raw, err := TLV.Marshal(sampleChunk(4).Envelope())
	require.NoError(t, err)
	f, err := frame.Decode(raw, frame.DefaultLimits())
	require.NoError(t, err)

	// a command header over chunk fields still satisfies the command schema
	f.Header.MessageType = uint16(schema.MsgCommand)
	relabeled, err := frame.Encode(f, frame.DefaultLimits())
	require.NoError(t, err)
	_, err = TLV.Unmarshal(relabeled)
	require.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = TLV.Unmarshal(raw[:len(raw)-1])
	require.ErrorIs(t, err, frame.ErrLengthMismatch)
}

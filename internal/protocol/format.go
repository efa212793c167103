package protocol

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/danmuck/chunkwire/internal/protocol/frame"
	"github.com/danmuck/chunkwire/internal/protocol/schema"
	"github.com/danmuck/chunkwire/internal/protocol/tlv"
	"github.com/fxamacker/cbor/v2"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
	ContentTypeTLV  = "application/vnd.chunkwire.tlv"
)

// Format serializes envelopes for one wire encoding.
type Format interface {
	Name() string
	ContentType() string
	Marshal(env Envelope) ([]byte, error)
	Unmarshal(data []byte) (Envelope, error)
}

var (
	JSON Format = jsonFormat{}
	CBOR Format = newCBORFormat()
	TLV  Format = tlvFormat{}
)

var formats = []Format{JSON, CBOR, TLV}

// FormatByName resolves "json", "cbor" or "tlv". An empty name selects JSON.
func FormatByName(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return JSON, nil
	}
	for _, f := range formats {
		if f.Name() == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatByContentType resolves a Content-Type header value, ignoring
// parameters such as charset.
func FormatByContentType(contentType string) (Format, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: content type %q", ErrUnknownFormat, contentType)
	}
	for _, f := range formats {
		if f.ContentType() == mediaType {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: content type %q", ErrUnknownFormat, contentType)
}

type jsonFormat struct{}

func (jsonFormat) Name() string        { return "json" }
func (jsonFormat) ContentType() string { return ContentTypeJSON }

func (jsonFormat) Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (jsonFormat) Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return env, nil
}

type cborFormat struct {
	enc cbor.EncMode
}

func newCBORFormat() cborFormat {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: cbor enc mode: " + err.Error())
	}
	return cborFormat{enc: enc}
}

func (cborFormat) Name() string        { return "cbor" }
func (cborFormat) ContentType() string { return ContentTypeCBOR }

func (f cborFormat) Marshal(env Envelope) ([]byte, error) {
	return f.enc.Marshal(env)
}

func (cborFormat) Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return env, nil
}

type tlvFormat struct{}

func (tlvFormat) Name() string        { return "tlv" }
func (tlvFormat) ContentType() string { return ContentTypeTLV }

func (tlvFormat) Marshal(env Envelope) ([]byte, error) {
	fields := []tlv.Field{
		tlv.String(schema.FieldAction, env.Action),
		tlv.String(schema.FieldUserID, env.Metadata.UserID),
		tlv.String(schema.FieldSessionID, env.Metadata.SessionID),
	}
	if seq, ok := env.Sequence(); ok {
		fields = append(fields, tlv.U32(schema.FieldSequence, seq))
	}
	if env.Data != nil {
		fields = append(fields, tlv.String(schema.FieldData, *env.Data))
	}
	kind := schema.KindOf(fields)
	if err := schema.Validate(kind, fields); err != nil {
		return nil, err
	}
	return frame.Encode(frame.New(uint16(kind), tlv.EncodeFields(fields)), frame.DefaultLimits())
}

// Unmarshal decodes a framed TLV envelope. The kind in the frame header must
// agree with the presence of a sequence field.
func (tlvFormat) Unmarshal(data []byte) (Envelope, error) {
	f, err := frame.Decode(data, frame.DefaultLimits())
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	kind := uint32(f.Header.MessageType)
	if err := schema.Validate(kind, fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if found := schema.KindOf(fields); found != kind {
		return Envelope{}, fmt.Errorf("%w: frame kind %d, fields describe kind %d", ErrInvalidEnvelope, kind, found)
	}
	env := Envelope{
		Action: getString(fields, schema.FieldAction),
		Metadata: Metadata{
			UserID:    getString(fields, schema.FieldUserID),
			SessionID: getString(fields, schema.FieldSessionID),
		},
	}
	if f, ok := tlv.GetField(fields, schema.FieldData); ok {
		env.SetData(string(f.Value))
	}
	if kind == schema.MsgFileChunk {
		f, _ := tlv.GetField(fields, schema.FieldSequence)
		seq, err := tlv.U32FromBytes(f.Value)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
		}
		env.Metadata.Sequence = &seq
	}
	return env, nil
}

func getString(fields []tlv.Field, id uint16) string {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return ""
	}
	return string(f.Value)
}

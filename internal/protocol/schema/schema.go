package schema

import (
	"fmt"

	"github.com/danmuck/chunkwire/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Envelope kinds carried by the binary format.
const (
	MsgCommand   uint32 = 1
	MsgFileChunk uint32 = 2
)

// Field IDs for envelope members.
const (
	FieldAction    uint16 = 1
	FieldUserID    uint16 = 2
	FieldSessionID uint16 = 3
	FieldSequence  uint16 = 4
	FieldData      uint16 = 5
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgCommand: {
		{FieldAction, tlv.TypeString},
		{FieldUserID, tlv.TypeString},
		{FieldSessionID, tlv.TypeString},
		{FieldData, tlv.TypeString},
	},
	MsgFileChunk: {
		{FieldAction, tlv.TypeString},
		{FieldUserID, tlv.TypeString},
		{FieldSessionID, tlv.TypeString},
		{FieldSequence, tlv.TypeU32},
		{FieldData, tlv.TypeString},
	},
}

// KindOf picks the envelope kind from the presence of a sequence field.
func KindOf(fields []tlv.Field) uint32 {
	if _, ok := tlv.GetField(fields, FieldSequence); ok {
		return MsgFileChunk
	}
	return MsgCommand
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}

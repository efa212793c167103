package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/chunkwire/internal/protocol/tlv"
	"github.com/danmuck/chunkwire/internal/testutil/testlog"
)

func commandFields() []tlv.Field {
	return []tlv.Field{
		tlv.String(FieldAction, "upload_chunk"),
		tlv.String(FieldUserID, "u-1"),
		tlv.String(FieldSessionID, "s-1"),
		tlv.String(FieldData, "Y2lwaGVy"),
	}
}

func TestValidateCommandRequiredFields(t *testing.T) {
	testlog.Start(t)
	fields := commandFields()
	if KindOf(fields) != MsgCommand {
		t.Fatalf("expected command kind")
	}
	if err := Validate(MsgCommand, fields); err != nil {
		t.Fatalf("validate command: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := append(commandFields(), tlv.Field{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}})
	if err := Validate(MsgCommand, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateFileChunkMissingSequenceDeterministic(t *testing.T) {
	testlog.Start(t)
	err := Validate(MsgFileChunk, commandFields())
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldSequence || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := append(commandFields(), tlv.String(FieldSequence, "3"))
	if KindOf(fields) != MsgFileChunk {
		t.Fatalf("sequence presence must select file chunk kind")
	}
	err := Validate(MsgFileChunk, fields)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldSequence || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	err := Validate(99, commandFields())
	var ve ValidationError
	if !errors.As(err, &ve) || ve.FieldID != 0 || ve.Reason != "unknown message_type" {
		t.Fatalf("unexpected error: %v", err)
	}
}

package protocol

import "errors"

var (
	ErrInvalidEnvelope = errors.New("protocol: invalid envelope")
	ErrMissingData     = errors.New("protocol: missing data")
	ErrMalformedData   = errors.New("protocol: malformed data")
	ErrUnknownFormat   = errors.New("protocol: unknown wire format")
)

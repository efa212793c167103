package codec

import "errors"

var (
	ErrEncode            = errors.New("codec: encode failed")
	ErrDecode            = errors.New("codec: decode failed")
	ErrMissingSequence   = errors.New("codec: envelope missing sequence")
	ErrDuplicateSequence = errors.New("codec: duplicate sequence")
	ErrSequenceGap       = errors.New("codec: sequence gap")
)

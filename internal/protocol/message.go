package protocol

// Message is the decoded form of an envelope: either a Command or a
// FileChunk. The two are told apart by the presence of a sequence, never by
// the action tag.
type Message interface {
	Envelope() Envelope
	Correlation() IDs
	isMessage()
}

// Command is a single encrypted command or response text.
type Command struct {
	IDs        IDs
	Ciphertext []byte
}

// FileChunk is one encrypted chunk of a multi-chunk transfer.
type FileChunk struct {
	IDs        IDs
	Sequence   uint32
	Ciphertext []byte
}

func (Command) isMessage()   {}
func (FileChunk) isMessage() {}

func (c Command) Correlation() IDs   { return c.IDs }
func (c FileChunk) Correlation() IDs { return c.IDs }

func (c Command) Envelope() Envelope {
	return Envelope{
		Action: ActionUploadChunk,
		Metadata: Metadata{
			UserID:    c.IDs.UserID,
			SessionID: c.IDs.SessionID,
		},
		Data: encodeData(c.Ciphertext),
	}
}

func (c FileChunk) Envelope() Envelope {
	seq := c.Sequence
	return Envelope{
		Action: ActionUploadChunk,
		Metadata: Metadata{
			UserID:    c.IDs.UserID,
			SessionID: c.IDs.SessionID,
			Sequence:  &seq,
		},
		Data: encodeData(c.Ciphertext),
	}
}

// Message decodes the envelope into its variant. It does not check action or
// correlation tokens; use Validate for that.
func (e Envelope) Message() (Message, error) {
	ciphertext, err := e.Ciphertext()
	if err != nil {
		return nil, err
	}
	if seq, ok := e.Sequence(); ok {
		return FileChunk{IDs: e.IDs(), Sequence: seq, Ciphertext: ciphertext}, nil
	}
	return Command{IDs: e.IDs(), Ciphertext: ciphertext}, nil
}

// NewCommandEnvelope wraps ciphertext as a command envelope.
func NewCommandEnvelope(ids IDs, ciphertext []byte) Envelope {
	return Command{IDs: ids, Ciphertext: ciphertext}.Envelope()
}

// NewFileChunkEnvelope wraps ciphertext as the seq-th file chunk.
func NewFileChunkEnvelope(ids IDs, seq uint32, ciphertext []byte) Envelope {
	return FileChunk{IDs: ids, Sequence: seq, Ciphertext: ciphertext}.Envelope()
}

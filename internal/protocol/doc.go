// Package protocol owns the envelope wire contract.
//
// Ownership boundary:
// - envelope and metadata shape
// - Command / FileChunk variants
// - wire formats (json, cbor, tlv)
//
// The codec that encrypts, sequences and reassembles lives in protocol/codec.
package protocol

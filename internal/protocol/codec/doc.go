// Package codec turns commands and payloads into encrypted envelopes and back.
//
// Outbound, a command becomes one envelope without a sequence, and a payload
// is split into randomly sized chunks that each become one envelope carrying
// its zero-based sequence. Inbound, a command response is decrypted to text
// and a set of chunk envelopes is reordered by sequence, decrypted and joined.
//
// A Codec keeps no state between calls. Every envelope gets two fresh
// identifiers from the configured generator.
package codec

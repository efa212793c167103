// Package relay is the receiving end of a chunkwire transfer.
//
// A Relay accepts envelopes over HTTP. Command envelopes are decrypted and
// answered through a Responder. File chunk envelopes are held until the
// client commits the transfer, at which point they are reordered, decrypted,
// joined and handed to a Sink. One transfer is collected at a time.
//
// Routes:
//
//	POST   /upload         command or file chunk envelope
//	POST   /upload/commit  command envelope carrying the chunk count
//	GET    /upload         collection status
//	DELETE /upload         drop held chunks
//	GET    /health, /ready, /metrics
package relay

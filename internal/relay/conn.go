// ABOUTME: Conn abstracts one long-lived bidirectional message channel.
// ABOUTME: Defines the close codes used for handshake rejects and teardown.

package relay

// Websocket close codes used by the relay. The numeric values are part of
// the wire contract with deployed agents.
const (
	// CloseMissingIdentity rejects an agent handshake without an id.
	CloseMissingIdentity = 1001
	// CloseVersionMismatch rejects an agent below the minimum version.
	CloseVersionMismatch = 1002
	// CloseGone tears down a channel on disconnect or supersession.
	CloseGone = 1004
	// CloseAuthFailure rejects an agent handshake with a bad secret.
	CloseAuthFailure = 1008
)

// Close reasons attached to the close frame.
const (
	// ReasonReplaced marks a channel superseded by a newer connection
	// under the same id.
	ReasonReplaced = "replaced"
	// ReasonClosed marks an ordinary teardown.
	ReasonClosed = "connection closed"
)

// Conn is one long-lived bidirectional channel carrying operation
// envelopes. The relay owns exactly one receive loop per Conn; ReadMessage
// must unblock promptly once Close has been called.
type Conn interface {
	// ReadMessage blocks until the next inbound frame or a channel error.
	ReadMessage() ([]byte, error)

	// WriteEnvelope delivers one envelope. Safe for concurrent use.
	WriteEnvelope(env Envelope) error

	// Close tears the channel down with a close code and reason.
	// Subsequent calls are no-ops.
	Close(code int, reason string) error
}

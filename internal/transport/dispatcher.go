// Package transport implements the transport fabric: a shared Dispatcher
// abstraction with three concrete carriers (in-process bus, HTTP
// request/response, Redis pub/sub) plus an operator-facing websocket
// feed, selected per message type by a static policy.
package transport

import (
	"context"

	"pdsno.io/controller/internal/envelope"
)

// Dispatcher sends an envelope toward its RecipientID and, for
// request/response carriers, returns the reply envelope (nil for fire-and
// -forget carriers like pub/sub).
type Dispatcher interface {
	Send(ctx context.Context, e *envelope.Envelope) (*envelope.Envelope, error)
}

// Idempotent reports whether replaying a message of msgType is safe, i.e.
// whether the retrying client of the HTTP carrier may resend it after a
// timeout without first checking server-side state.
func Idempotent(msgType string) bool {
	switch msgType {
	case "DISCOVERY_REPORT", "VALIDATION_REQUEST", "CHALLENGE_RESPONSE":
		return true
	default:
		return false
	}
}

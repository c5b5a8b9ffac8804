// Package bus implements the authenticated point-to-point message bus
// parties use to exchange consensus proposals, TSS rounds, and
// finalization notices.
package bus

import "github.com/google/uuid"

// Envelope is the wire shape exchanged between parties: a sender id, a
// session correlation id, a message type tag, and an opaque payload.
type Envelope struct {
	MessageID string `json:"message_id"`
	SenderID  int    `json:"sender_id"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	Data      []byte `json:"data"`
}

// newMessageID stamps an outbound envelope with a fresh correlation id
// for cross-party log tracing. Callers never need to set MessageID
// themselves.
func newMessageID() string {
	return uuid.NewString()
}

package signcoord

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/certen/bridge-validator/internal/bus"
	"github.com/certen/bridge-validator/internal/tss"
)

const msgTSSRound = "tss_round"

type tssFrame struct {
	Round string `json:"round"`
	Data  []byte `json:"data"`
}

// BusTransport implements tss.Transport over the shared authenticated
// message bus, scoping every round to one signing session id so
// concurrent sessions for different deposits never cross streams.
type BusTransport struct {
	bus       *bus.Bus
	sessionID string
	seen      int // count of tssRound envelopes already scanned for this session
}

// NewBusTransport builds a tss.Transport bound to one signing session.
func NewBusTransport(b *bus.Bus, sessionID string) *BusTransport {
	return &BusTransport{bus: b, sessionID: sessionID}
}

// Send implements tss.Transport. to == -1 broadcasts to every configured
// peer except this party.
func (t *BusTransport) Send(ctx context.Context, to int, round string, data []byte) error {
	payload, err := json.Marshal(tssFrame{Round: round, Data: data})
	if err != nil {
		return fmt.Errorf("marshal tss frame: %w", err)
	}
	env := bus.Envelope{SessionID: t.sessionID, Type: msgTSSRound, Data: payload}

	if to == -1 {
		return t.bus.Broadcast(ctx, env)
	}
	return t.bus.Send(ctx, to, env)
}

// Wait implements tss.Transport by collecting bus envelopes for this
// session until one decodes to the requested round from the requested
// sender. The sender identity is trusted from the envelope, matching how
// the bus authenticates inbound traffic at the transport layer
// (shared-secret header), not per-message. Collect's `want` count grows
// each retry so previously-scanned, non-matching envelopes are not
// re-fetched forever.
func (t *BusTransport) Wait(ctx context.Context, from int, round string) ([]byte, error) {
	for {
		t.seen++
		envs, err := t.bus.Collect(ctx, msgTSSRound, t.sessionID, t.seen)
		for i := len(envs) - 1; i >= 0; i-- {
			env := envs[i]
			if env.SenderID != from {
				continue
			}
			var frame tssFrame
			if jsonErr := json.Unmarshal(env.Data, &frame); jsonErr != nil {
				continue
			}
			if frame.Round == round {
				return frame.Data, nil
			}
		}
		if err != nil {
			return nil, fmt.Errorf("wait for tss round %q from party %d: %w", round, from, err)
		}
		if len(envs) < t.seen {
			// Collect returned fewer than requested without erroring:
			// nothing more is coming for now without blocking again.
			t.seen = len(envs)
		}
	}
}

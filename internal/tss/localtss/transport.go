// Package localtss is an in-memory reference implementation of
// tss.Protocol and tss.Transport, useful for exercising the signing
// coordinator and consensus engine in tests without a real multi-party
// computation backend. It is a single-process simulation: the "dealer"
// party temporarily holds the combined secret in memory during DKG and
// signing, which is acceptable for tests but must never be used in a
// production deployment — a production deployment substitutes a vetted
// threshold-ECDSA MPC library behind the same tss.Protocol interface.
package localtss

import (
	"context"
	"fmt"
	"sync"
)

type routeKey struct {
	round string
	to    int
	from  int
}

// MemTransport is a shared in-memory bus connecting every virtual party
// in a single test process.
type MemTransport struct {
	mu    sync.Mutex
	boxes map[routeKey]chan []byte
}

// NewMemTransport builds an empty shared transport; For binds it to a
// party.
func NewMemTransport() *MemTransport {
	return &MemTransport{boxes: make(map[routeKey]chan []byte)}
}

// For returns a tss.Transport bound to one party's identity over the
// shared in-memory fabric.
func (m *MemTransport) For(partyID int, parties []int) *partyTransport {
	return &partyTransport{partyID: partyID, parties: parties, shared: m}
}

func (m *MemTransport) box(key routeKey) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.boxes[key]
	if !ok {
		ch = make(chan []byte, 1)
		m.boxes[key] = ch
	}
	return ch
}

type partyTransport struct {
	partyID int
	parties []int
	shared  *MemTransport
}

// Send implements tss.Transport. to == -1 means broadcast to every other
// party in the set.
func (t *partyTransport) Send(ctx context.Context, to int, round string, data []byte) error {
	targets := []int{to}
	if to == -1 {
		targets = targets[:0]
		for _, p := range t.parties {
			if p != t.partyID {
				targets = append(targets, p)
			}
		}
	}
	for _, target := range targets {
		ch := t.shared.box(routeKey{round: round, to: target, from: t.partyID})
		select {
		case ch <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Wait implements tss.Transport.
func (t *partyTransport) Wait(ctx context.Context, from int, round string) ([]byte, error) {
	ch := t.shared.box(routeKey{round: round, to: t.partyID, from: from})
	select {
	case data := <-ch:
		return data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for round %q from party %d: %w", round, from, ctx.Err())
	}
}

// Package tss defines the threshold-ECDSA primitive the signing
// coordinator drives as a black box: distributed key generation and
// distributed signing over secp256k1, consumed through narrow
// interfaces so the actual multi-party computation backend is
// pluggable.
package tss

import "context"

// Transport carries the broadcast and point-to-point messages a Protocol
// round needs, scoped to one session. Implementations are expected to
// sit on top of the authenticated message bus.
type Transport interface {
	// Send delivers data to party `to` (or to every other party, if the
	// round is a broadcast step and `to` is -1) tagged with round.
	Send(ctx context.Context, to int, round string, data []byte) error

	// Wait blocks for the named round's message from `from`; a broadcast
	// step is collected with one Wait per sending party.
	Wait(ctx context.Context, from int, round string) ([]byte, error)
}

// KeyResult is the outcome of a successful DKG run: this party's opaque
// keyshare, plus the group public key every party derives identically.
type KeyResult struct {
	Keyshare       []byte
	GroupPublicKey []byte // 33-byte compressed secp256k1 point
}

// SignResult is a standard ECDSA signature (r, s) over secp256k1, plus
// the recovery id needed to reconstruct the public key from it.
type SignResult struct {
	R        []byte // 32 bytes, big-endian
	S        []byte // 32 bytes, big-endian
	Recovery byte   // 0 or 1
}

// Protocol is the two-phase threshold-ECDSA primitive: n parties run DKG
// once to produce keyshares and a shared group public key; thereafter
// any t of them can run Sign over a 32-byte digest without any party
// reconstructing the private key.
type Protocol interface {
	DKG(ctx context.Context, transport Transport, partyID int, parties []int, threshold int) (*KeyResult, error)
	Sign(ctx context.Context, transport Transport, partyID int, signers []int, keyshare []byte, digest [32]byte) (*SignResult, error)
}

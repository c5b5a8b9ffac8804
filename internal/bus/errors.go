package bus

import "errors"

var (
	// ErrUnauthorized names the failure of an inbound request whose auth
	// header does not match the configured shared secret; the inbound
	// handler answers such requests with HTTP 401 and does not return it.
	ErrUnauthorized = errors.New("bus: unauthorized")

	// ErrEquivocation is returned when a second single-proposal message
	// for a session arrives from a different sender than the first.
	ErrEquivocation = errors.New("bus: equivocating proposal rejected")

	// ErrTimeout is returned when a session-scoped collection does not
	// gather the requested count before its deadline.
	ErrTimeout = errors.New("bus: collection timed out")

	// ErrUnknownPeer is returned when a send targets a party id with no
	// configured host.
	ErrUnknownPeer = errors.New("bus: unknown peer")
)

// Package chainwatch implements the per-chain deposit observers: poll a
// confirmed block/height range for bridge deposits, and independently
// verify or reconstruct a specific claimed deposit from on-chain data.
package chainwatch

import (
	"context"

	"github.com/certen/bridge-validator/internal/store"
)

// Observer is the shape shared by every chain leg's watcher.
type Observer interface {
	// Poll advances the observer's cursor to the confirmed head and
	// upserts any newly visible deposits into the state store. Idempotent
	// under repeated calls.
	Poll(ctx context.Context) error

	// Verify reports whether txID really contains a matching bridge
	// deposit at intraIndex, with enough confirmations.
	Verify(ctx context.Context, txID string, intraIndex int) (bool, error)

	// FetchCanonical reconstructs the deposit record directly from chain
	// data, independent of any external claim, or returns nil if the
	// deposit is not (yet) visible.
	FetchCanonical(ctx context.Context, txID string, intraIndex int) (*store.DepositRecord, error)
}

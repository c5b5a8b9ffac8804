// Package scheduler derives the time-synchronized session epoch, elects
// a deterministic per-session leader, and drives the wake-on-epoch loop
// that fires one consensus round per destination chain per tick.
package scheduler

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// CurrentEpoch returns floor(wall_clock_ms / intervalMs).
func CurrentEpoch(interval time.Duration) int64 {
	ms := time.Now().UnixMilli()
	return ms / interval.Milliseconds()
}

// SessionID builds the `SIGN_{destChain}_{epoch}` identifier parties
// reconstruct independently from their own clocks.
func SessionID(destChain string, epoch int64) string {
	return fmt.Sprintf("SIGN_%s_%d", destChain, epoch)
}

// Leader deterministically elects a party for sessionID:
// u32_big_endian(sha256(session_id)[0:4]) mod n.
func Leader(sessionID string, n int) int {
	h := sha256.Sum256([]byte(sessionID))
	v := binary.BigEndian.Uint32(h[0:4])
	return int(v % uint32(n))
}

// nextBoundary returns the time at which the next epoch begins.
func nextBoundary(interval time.Duration) time.Time {
	epoch := CurrentEpoch(interval)
	nextEpochMS := (epoch + 1) * interval.Milliseconds()
	return time.UnixMilli(nextEpochMS)
}

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCurrentEpochIsMonotonic(t *testing.T) {
	interval := 200 * time.Millisecond
	e1 := CurrentEpoch(interval)
	time.Sleep(interval)
	e2 := CurrentEpoch(interval)
	require.Greater(t, e2, e1)
}

func TestSessionIDFormat(t *testing.T) {
	require.Equal(t, "SIGN_evm_42", SessionID("evm", 42))
	require.Equal(t, "SIGN_asset_0", SessionID("asset", 0))
}

func TestLeaderIsDeterministicAndInRange(t *testing.T) {
	sessionID := SessionID("evm", 123456)
	first := Leader(sessionID, 3)
	require.GreaterOrEqual(t, first, 0)
	require.Less(t, first, 3)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Leader(sessionID, 3))
	}
}

func TestLeaderVariesAcrossSessions(t *testing.T) {
	seen := map[int]bool{}
	for epoch := int64(0); epoch < 50; epoch++ {
		seen[Leader(SessionID("evm", epoch), 3)] = true
	}
	require.Greater(t, len(seen), 1, "leader election should not always pick the same party across epochs")
}

func TestLoopFiresOncePerDestinationPerEpoch(t *testing.T) {
	interval := 50 * time.Millisecond
	var mu sync.Mutex
	var ticks []string

	l := New(Config{Interval: interval, DestChains: []string{"evm", "asset"}}, func(ctx context.Context, destChain string, epoch int64, sessionID string) {
		mu.Lock()
		ticks = append(ticks, destChain)
		mu.Unlock()
	})
	require.NoError(t, l.Start())
	defer l.Stop()

	time.Sleep(interval*2 + interval/2)
	l.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(ticks), 2)
	require.Contains(t, ticks, "evm")
	require.Contains(t, ticks, "asset")
}

func TestLoopRestartAfterStop(t *testing.T) {
	l := New(Config{Interval: 50 * time.Millisecond, DestChains: []string{"evm"}}, func(context.Context, string, int64, string) {})
	require.NoError(t, l.Start())
	l.Stop()
	l.Stop()
	require.NoError(t, l.Start())
	l.Stop()
}

func TestLoopStartTwiceErrors(t *testing.T) {
	l := New(Config{Interval: 50 * time.Millisecond, DestChains: []string{"evm"}}, func(context.Context, string, int64, string) {})
	require.NoError(t, l.Start())
	defer l.Stop()
	require.Error(t, l.Start())
}

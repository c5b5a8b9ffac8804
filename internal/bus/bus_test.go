package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterHandlerDeliversBufferedInOrder(t *testing.T) {
	b := New(0, map[int]string{0: "localhost:0"}, "secret")

	require.NoError(t, b.deliver(Envelope{SenderID: 1, SessionID: "1", Type: "greet", Data: []byte("a")}, 0))
	require.NoError(t, b.deliver(Envelope{SenderID: 1, SessionID: "1", Type: "greet", Data: []byte("b")}, 0))

	var got []string
	b.RegisterHandler("greet", func(env Envelope) {
		got = append(got, string(env.Data))
	})

	require.Equal(t, []string{"a", "b"}, got)
}

func TestEquivocationGuardRejectsSecondSender(t *testing.T) {
	b := New(0, map[int]string{0: "localhost:0"}, "secret")
	b.MarkSingleProposal("propose")

	require.NoError(t, b.deliver(Envelope{SenderID: 1, SessionID: "5", Type: "propose"}, 0))
	err := b.deliver(Envelope{SenderID: 2, SessionID: "5", Type: "propose"}, 0)
	require.ErrorIs(t, err, ErrEquivocation)

	// A retry from the original sender is accepted, not treated as equivocation.
	require.NoError(t, b.deliver(Envelope{SenderID: 1, SessionID: "5", Type: "propose"}, 0))
}

func TestCollectReturnsBufferedHistoryImmediately(t *testing.T) {
	b := New(0, map[int]string{0: "localhost:0"}, "secret")
	require.NoError(t, b.deliver(Envelope{SenderID: 1, SessionID: "SIGN_evm_10", Type: "ack"}, 0))
	require.NoError(t, b.deliver(Envelope{SenderID: 2, SessionID: "SIGN_evm_11", Type: "ack"}, 0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := b.Collect(ctx, "ack", "SIGN_evm_10", 2)
	require.NoError(t, err)
	require.Len(t, got, 2) // SIGN_evm_11 is within ±1 epoch tolerance of SIGN_evm_10
}

func TestCollectIgnoresMismatchedPrefixEvenWithinEpochTolerance(t *testing.T) {
	b := New(0, map[int]string{0: "localhost:0"}, "secret")
	require.NoError(t, b.deliver(Envelope{SenderID: 1, SessionID: "SIGN_evm_10", Type: "ack"}, 0))
	require.NoError(t, b.deliver(Envelope{SenderID: 2, SessionID: "SIGN_asset_11", Type: "ack"}, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	got, err := b.Collect(ctx, "ack", "SIGN_evm_10", 2)
	require.ErrorIs(t, err, ErrTimeout)
	require.Len(t, got, 1) // the asset-chain session never matches, despite epoch 11 being adjacent
}

func TestCollectTimesOutWithPartialResults(t *testing.T) {
	b := New(0, map[int]string{0: "localhost:0"}, "secret")
	require.NoError(t, b.deliver(Envelope{SenderID: 1, SessionID: "SIGN_evm_20", Type: "ack"}, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	got, err := b.Collect(ctx, "ack", "SIGN_evm_20", 3)
	require.ErrorIs(t, err, ErrTimeout)
	require.Len(t, got, 1)
}

func TestCleanupDiscardsOldProposalOwnership(t *testing.T) {
	b := New(0, map[int]string{0: "localhost:0"}, "secret", WithRetention(2))
	b.MarkSingleProposal("propose")

	require.NoError(t, b.deliver(Envelope{SenderID: 1, SessionID: "1", Type: "propose"}, 0))
	b.AdvanceEpoch(10) // far past the retention window

	// The guard record for epoch 0 is gone, so a new sender may claim it.
	require.NoError(t, b.deliver(Envelope{SenderID: 2, SessionID: "1", Type: "propose"}, 10))
}

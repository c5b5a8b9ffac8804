package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	return New(newMemKV())
}

func sampleRecord() *DepositRecord {
	return &DepositRecord{
		SourceChain:  "evm",
		SourceTxID:   "0xabc123",
		IntraTxIndex: 0,
		Amount:       "10000000000000",
		Receiver:     "certen1qreceiveraddress",
		DestChain:    "asset",
	}
}

func TestUpsertDepositIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	rec := sampleRecord()

	require.NoError(t, repo.UpsertDeposit(rec))
	require.NoError(t, repo.UpsertDeposit(sampleRecord()))

	found, err := repo.Lookup("evm", "0xabc123", 0)
	require.NoError(t, err)
	require.Equal(t, StatusPending, found.Status)
}

func TestPendingForReturnsOldestPending(t *testing.T) {
	repo := newTestRepo(t)

	first := sampleRecord()
	require.NoError(t, repo.UpsertDeposit(first))

	time.Sleep(time.Millisecond)

	second := sampleRecord()
	second.SourceTxID = "0xdef456"
	require.NoError(t, repo.UpsertDeposit(second))

	got, err := repo.PendingFor("asset")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "0xabc123", got.SourceTxID)
}

func TestStatusUpdateRefusesOutOfFinalized(t *testing.T) {
	repo := newTestRepo(t)
	rec := sampleRecord()
	require.NoError(t, repo.UpsertDeposit(rec))

	require.NoError(t, repo.StatusUpdate("evm", "0xabc123", 0, StatusProcessing, nil))
	require.NoError(t, repo.StatusUpdate("evm", "0xabc123", 0, StatusSigned, []byte("sig")))
	require.NoError(t, repo.StatusUpdate("evm", "0xabc123", 0, StatusFinalized, nil))

	err := repo.StatusUpdate("evm", "0xabc123", 0, StatusPending, nil)
	require.ErrorIs(t, err, ErrFinalized)

	found, err := repo.Lookup("evm", "0xabc123", 0)
	require.NoError(t, err)
	require.Equal(t, StatusFinalized, found.Status)
}

func TestStatusUpdateFinalizedIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	rec := sampleRecord()
	require.NoError(t, repo.UpsertDeposit(rec))
	require.NoError(t, repo.StatusUpdate("evm", "0xabc123", 0, StatusProcessing, nil))
	require.NoError(t, repo.StatusUpdate("evm", "0xabc123", 0, StatusSigned, nil))
	require.NoError(t, repo.StatusUpdate("evm", "0xabc123", 0, StatusFinalized, nil))

	// S5: replay of the finalization notification is a no-op, not an error.
	require.NoError(t, repo.StatusUpdate("evm", "0xabc123", 0, StatusFinalized, nil))
}

func TestPendingForSkipsFreshSignedRows(t *testing.T) {
	repo := newTestRepo(t)
	rec := sampleRecord()
	require.NoError(t, repo.UpsertDeposit(rec))
	require.NoError(t, repo.StatusUpdate("evm", "0xabc123", 0, StatusProcessing, nil))
	require.NoError(t, repo.StatusUpdate("evm", "0xabc123", 0, StatusSigned, []byte("sig")))

	got, err := repo.PendingFor("asset")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPendingForSkipsSignedRowsWithFinalizationSeen(t *testing.T) {
	repo := newTestRepo(t)
	rec := sampleRecord()
	require.NoError(t, repo.UpsertDeposit(rec))
	require.NoError(t, repo.StatusUpdate("evm", "0xabc123", 0, StatusProcessing, nil))
	require.NoError(t, repo.StatusUpdate("evm", "0xabc123", 0, StatusSigned, []byte("sig")))
	require.NoError(t, repo.MarkFinalizationSeen("evm", "0xabc123", 0))

	// Age the row past the staleness threshold so only the flag keeps
	// PendingFor from re-selecting it.
	pk := primaryKey(Identity{SourceChain: "evm", SourceTxID: "0xabc123", IntraTxIndex: 0})
	row, err := repo.get(pk)
	require.NoError(t, err)
	row.UpdatedAt = time.Now().UTC().Add(-2 * staleSignedThreshold)
	require.NoError(t, repo.put(pk, row))

	got, err := repo.PendingFor("asset")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestLookupMissingReturnsErrNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Lookup("evm", "0xmissing", 0)
	require.ErrorIs(t, err, ErrNotFound)
}

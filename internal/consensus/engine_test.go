package consensus

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/certen/bridge-validator/internal/bus"
	"github.com/certen/bridge-validator/internal/chainwatch"
	"github.com/certen/bridge-validator/internal/scheduler"
	"github.com/certen/bridge-validator/internal/store"
)

// stubObserver always re-verifies to a fixed canonical record, simulating
// an on-chain re-fetch that agrees with what was actually deposited.
type stubObserver struct {
	canonical *store.DepositRecord
}

func (s *stubObserver) Poll(ctx context.Context) error { return nil }

func (s *stubObserver) Verify(ctx context.Context, txID string, intraIndex int) (bool, error) {
	return s.canonical != nil, nil
}

func (s *stubObserver) FetchCanonical(ctx context.Context, txID string, intraIndex int) (*store.DepositRecord, error) {
	if s.canonical == nil || s.canonical.SourceTxID != txID || s.canonical.IntraTxIndex != intraIndex {
		return nil, nil
	}
	cp := *s.canonical
	return &cp, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func newThreePartyEngines(t *testing.T, canonical *store.DepositRecord, destChain string) ([]*Engine, []*store.Repository, func()) {
	t.Helper()
	const n = 3

	ports := []int{freePort(t), freePort(t), freePort(t)}
	peers := make(map[int]string, n)
	for i, p := range ports {
		peers[i] = "127.0.0.1:" + strconv.Itoa(p)
	}

	buses := make([]*bus.Bus, n)
	repos := make([]*store.Repository, n)
	engines := make([]*Engine, n)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		b := bus.New(i, peers, "secret")
		repo := store.New(store.OpenMemory())
		observer := &stubObserver{canonical: canonical}

		buses[i] = b
		repos[i] = repo
		engines[i] = New(Config{
			PartyID:      i,
			TotalParties: n,
			Threshold:    2,
			Timeout:      2 * time.Second,
			Bus:          b,
			Repo:         repo,
			Observers:    map[string]chainwatch.Observer{canonical.SourceChain: observer},
		})

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = b.ListenAndServe(ctx, peers[idx])
		}(i)
	}

	time.Sleep(50 * time.Millisecond) // let listeners come up

	stop := func() {
		cancel()
		wg.Wait()
	}
	return engines, repos, stop
}

func TestConsensusRoundProducesSignerSet(t *testing.T) {
	canonical := &store.DepositRecord{
		SourceChain:  "evm",
		SourceTxID:   "0xdeadbeef",
		IntraTxIndex: 0,
		Amount:       "1000000",
		Receiver:     "asset1receiveraddress",
		DestChain:    "asset",
		Status:       store.StatusPending,
	}

	engines, repos, stop := newThreePartyEngines(t, canonical, "asset")
	defer stop()

	sessionID := "SIGN_asset_777"
	leader := scheduler.Leader(sessionID, 3)
	require.NoError(t, repos[leader].UpsertDeposit(&store.DepositRecord{
		SourceChain:  canonical.SourceChain,
		SourceTxID:   canonical.SourceTxID,
		IntraTxIndex: canonical.IntraTxIndex,
		Amount:       canonical.Amount,
		Receiver:     canonical.Receiver,
		DestChain:    canonical.DestChain,
	}))

	type result struct {
		rec     *store.DepositRecord
		signers []int
		err     error
	}
	results := make([]result, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			rec, signers, err := engines[idx].RunSession(ctx, "asset", sessionID)
			results[idx] = result{rec, signers, err}
		}(i)
	}
	wg.Wait()

	require.NoError(t, results[leader].err)
	require.NotNil(t, results[leader].rec)
	require.Len(t, results[leader].signers, 2)
	require.Contains(t, results[leader].signers, leader)

	acceptedSomewhere := false
	for i := 0; i < 3; i++ {
		if i == leader {
			continue
		}
		if results[i].rec != nil {
			acceptedSomewhere = true
			require.Equal(t, results[leader].signers, results[i].signers)
		}
	}
	require.True(t, acceptedSomewhere, "at least one acceptor should have completed the round with the leader's signer set")
}

func TestAcceptorRejectsDataMismatch(t *testing.T) {
	canonical := &store.DepositRecord{
		SourceChain:  "evm",
		SourceTxID:   "0xbadbeef",
		IntraTxIndex: 0,
		Amount:       "10",
		Receiver:     "real-receiver",
		DestChain:    "asset",
		Status:       store.StatusPending,
	}
	engines, repos, stop := newThreePartyEngines(t, canonical, "asset")
	defer stop()

	sessionID := "SIGN_asset_999"
	leader := scheduler.Leader(sessionID, 3)
	// Proposer's local copy lies about the amount; acceptors re-fetch the
	// real value via FetchCanonical and must reject.
	require.NoError(t, repos[leader].UpsertDeposit(&store.DepositRecord{
		SourceChain:  canonical.SourceChain,
		SourceTxID:   canonical.SourceTxID,
		IntraTxIndex: canonical.IntraTxIndex,
		Amount:       "999999999",
		Receiver:     canonical.Receiver,
		DestChain:    canonical.DestChain,
	}))

	var wg sync.WaitGroup
	results := make([]struct {
		signers []int
		err     error
	}, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_, signers, err := engines[idx].RunSession(ctx, "asset", sessionID)
			results[idx].signers = signers
			results[idx].err = err
		}(i)
	}
	wg.Wait()

	require.ErrorIs(t, results[leader].err, ErrConsensusFailed)
	for i := 0; i < 3; i++ {
		require.Nil(t, results[i].signers)
	}
}

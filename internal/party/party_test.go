package party

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/certen/bridge-validator/internal/bus"
	"github.com/certen/bridge-validator/internal/chainwatch"
	"github.com/certen/bridge-validator/internal/config"
	"github.com/certen/bridge-validator/internal/metrics"
	"github.com/certen/bridge-validator/internal/store"
)

type noopObserver struct{ polled int }

func (o *noopObserver) Poll(ctx context.Context) error { o.polled++; return nil }
func (o *noopObserver) Verify(ctx context.Context, txID string, intraIndex int) (bool, error) {
	return false, nil
}
func (o *noopObserver) FetchCanonical(ctx context.Context, txID string, intraIndex int) (*store.DepositRecord, error) {
	return nil, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestSourceChainForPicksOtherLeg(t *testing.T) {
	cfg := &config.Config{}
	cfg.EVM.ChainTag = "evm"
	cfg.Asset.ChainTag = "asset"

	require.Equal(t, "asset", sourceChainFor("evm", cfg))
	require.Equal(t, "evm", sourceChainFor("asset", cfg))
}

func TestOnTickPollsAndNoOpsWithoutPendingDeposit(t *testing.T) {
	port := freePort(t)
	peers := map[int]string{0: "127.0.0.1:" + strconv.Itoa(port)}
	b := bus.New(0, peers, "secret")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.ListenAndServe(ctx, peers[0]) }()
	time.Sleep(50 * time.Millisecond)

	cfg := &config.Config{PartyID: 0, TotalParties: 1, Threshold: 1}
	cfg.EVM.ChainTag = "evm"
	cfg.Asset.ChainTag = "asset"
	cfg.SessionIntervalMS = config.Duration(time.Second)
	cfg.ConsensusTimeoutMS = config.Duration(time.Second)
	cfg.SigningTimeoutMS = config.Duration(time.Second)

	repo := store.New(store.OpenMemory())
	assetObs := &noopObserver{}
	evmObs := &noopObserver{}

	m := New(Deps{
		Config: cfg,
		Bus:    b,
		Repo:   repo,
		Observers: map[string]chainwatch.Observer{
			"evm":   evmObs,
			"asset": assetObs,
		},
		Metrics: metrics.New(prometheus.NewRegistry()),
	})

	m.onTick(ctx, "evm", 1, "SIGN_evm_1")
	require.Equal(t, 1, assetObs.polled, "evm destination should poll the asset source leg")
	require.Equal(t, 0, evmObs.polled)

	m.onTick(ctx, "asset", 1, "SIGN_asset_1")
	require.Equal(t, 1, evmObs.polled, "asset destination should poll the evm source leg")
}

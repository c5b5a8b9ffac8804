// Package party wires the bridge validator's modules together into one
// running party process: scheduler ticks drive a consensus session, an
// agreed candidate is handed to the signing coordinator, and a produced
// signature is submitted to its destination chain.
package party

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/certen/bridge-validator/internal/assetchain"
	"github.com/certen/bridge-validator/internal/bus"
	"github.com/certen/bridge-validator/internal/chainwatch"
	"github.com/certen/bridge-validator/internal/config"
	"github.com/certen/bridge-validator/internal/consensus"
	"github.com/certen/bridge-validator/internal/finalize"
	"github.com/certen/bridge-validator/internal/metrics"
	"github.com/certen/bridge-validator/internal/scheduler"
	"github.com/certen/bridge-validator/internal/signcoord"
	"github.com/certen/bridge-validator/internal/store"
	"github.com/certen/bridge-validator/internal/tss"
)

// Manager owns one party's full set of runtime components and drives the
// propose/accept -> sign -> finalize pipeline once per epoch tick.
type Manager struct {
	cfg *config.Config

	bus       *bus.Bus
	repo      *store.Repository
	engine    *consensus.Engine
	signer    *signcoord.Coordinator
	finalizer *finalize.Coordinator
	observers map[string]chainwatch.Observer
	loop      *scheduler.Loop
	metrics   *metrics.Registry

	logger *log.Logger
}

// Deps bundles the already-constructed components a Manager wires
// together. Callers (cmd/party) assemble these from config.
type Deps struct {
	Config     *config.Config
	Bus        *bus.Bus
	Repo       *store.Repository
	Observers  map[string]chainwatch.Observer
	Protocol   tss.Protocol
	Keys       *tss.KeyManager
	AssetChain *assetchain.Client
	EVM        *finalize.EVMSubmitter
	Asset      *finalize.AssetSubmitter
	Metrics    *metrics.Registry
}

// New assembles a Manager from deps. It does not start the scheduler
// loop; call Start for that.
func New(deps Deps) *Manager {
	signHashers := map[string]consensus.SignHasher{}
	signer := signcoord.New(deps.Config, deps.Protocol, deps.Keys, deps.AssetChain)
	signHashers[deps.Config.EVM.ChainTag] = signer

	engine := consensus.New(consensus.Config{
		PartyID:      deps.Config.PartyID,
		TotalParties: deps.Config.TotalParties,
		Threshold:    deps.Config.Threshold,
		Timeout:      deps.Config.ConsensusTimeoutMS.Dur(),
		Bus:          deps.Bus,
		Repo:         deps.Repo,
		Observers:    deps.Observers,
		SignHashers:  signHashers,
	})

	finalizer := finalize.New(finalize.Config{
		Repo:  deps.Repo,
		Bus:   deps.Bus,
		EVM:   deps.EVM,
		Asset: deps.Asset,
	})

	m := &Manager{
		cfg:       deps.Config,
		bus:       deps.Bus,
		repo:      deps.Repo,
		engine:    engine,
		signer:    signer,
		finalizer: finalizer,
		observers: deps.Observers,
		metrics:   deps.Metrics,
		logger:    log.New(log.Writer(), "[party] ", log.LstdFlags|log.Lmicroseconds),
	}

	m.loop = scheduler.New(scheduler.Config{
		Interval:   deps.Config.SessionIntervalMS.Dur(),
		DestChains: []string{deps.Config.EVM.ChainTag, deps.Config.Asset.ChainTag},
	}, m.onTick)

	return m
}

// Start begins the per-epoch scheduler loop.
func (m *Manager) Start() error {
	return m.loop.Start()
}

// Stop halts the scheduler loop.
func (m *Manager) Stop() {
	m.loop.Stop()
}

// onTick is the scheduler's TickFunc: run one consensus session for
// destChain/sessionID, and if it produces an agreed candidate, carry it
// through signing and finalization. Errors are logged, not returned: a
// failed session simply leaves its candidate pending for the next
// eligible epoch.
func (m *Manager) onTick(ctx context.Context, destChain string, epoch int64, sessionID string) {
	m.bus.AdvanceEpoch(epoch)

	if obs, ok := m.observers[sourceChainFor(destChain, m.cfg)]; ok {
		if err := obs.Poll(ctx); err != nil {
			m.logger.Printf("poll %s observer: %v", destChain, err)
		}
	}

	leader := scheduler.Leader(sessionID, m.cfg.TotalParties)
	role := "acceptor"
	if leader == m.cfg.PartyID {
		role = "leader"
	}
	if m.metrics != nil {
		m.metrics.SessionsStarted.WithLabelValues(destChain, role).Inc()
	}

	rec, signers, err := m.engine.RunSession(ctx, destChain, sessionID)
	if err != nil {
		m.logger.Printf("session %s failed: %v", sessionID, err)
		return
	}
	if rec == nil || len(signers) == 0 {
		return
	}
	if m.metrics != nil {
		m.metrics.SessionsWon.WithLabelValues(destChain).Inc()
	}

	m.logger.Printf("session %s agreed candidate %s/%s/%d for %s with signers %v",
		sessionID, rec.SourceChain, rec.SourceTxID, rec.IntraTxIndex, destChain, signers)

	if err := m.signAndFinalize(ctx, destChain, sessionID, rec, signers); err != nil {
		m.logger.Printf("sign/finalize for %s/%s/%d failed: %v", rec.SourceChain, rec.SourceTxID, rec.IntraTxIndex, err)
	}
}

// signAndFinalize drives the TSS round over the agreed signer set and
// submits the result to destChain. Only a party listed in signers
// participates in signing; the rest simply wait for the next epoch's
// observation of the finalized withdrawal via MsgFinalized.
func (m *Manager) signAndFinalize(ctx context.Context, destChain, sessionID string, rec *store.DepositRecord, signers []int) error {
	if !contains(signers, m.cfg.PartyID) {
		return nil
	}

	signCtx, cancel := context.WithTimeout(ctx, m.cfg.SigningTimeoutMS.Dur())
	defer cancel()

	transport := signcoord.NewBusTransport(m.bus, sessionID)

	var digest []byte
	var unsignedTxHex string
	var err error
	if destChain == m.cfg.EVM.ChainTag {
		digest, err = m.signer.ComputeSignHash(rec)
		if err != nil {
			return fmt.Errorf("compute evm sign hash: %w", err)
		}
	} else {
		assetID := ""
		if rec.TokenID != nil {
			assetID = *rec.TokenID
		}
		unsignedTxHex, digest, err = m.signer.AssetDigest(signCtx, assetID, rec)
		if err != nil {
			return fmt.Errorf("fetch asset digest: %w", err)
		}
	}

	sig, err := m.signer.Sign(signCtx, transport, signers, digest)
	if err != nil {
		return fmt.Errorf("tss sign: %w", err)
	}
	if m.metrics != nil {
		m.metrics.SignaturesMade.WithLabelValues(destChain).Inc()
	}

	finalizeCtx, cancel2 := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel2()

	if destChain == m.cfg.EVM.ChainTag {
		err = m.finalizer.FinalizeEVM(finalizeCtx, rec, sig)
	} else {
		err = m.finalizer.FinalizeAsset(finalizeCtx, rec, unsignedTxHex, sig)
	}
	if m.metrics != nil {
		if err != nil {
			m.metrics.FinalizeFailures.WithLabelValues(destChain).Inc()
		} else {
			m.metrics.Finalizations.WithLabelValues(destChain, "success").Inc()
		}
	}
	return err
}

// sourceChainFor returns the chain whose deposits fund a withdrawal to
// destChain: with exactly two legs, that's always the other one.
func sourceChainFor(destChain string, cfg *config.Config) string {
	if destChain == cfg.EVM.ChainTag {
		return cfg.Asset.ChainTag
	}
	return cfg.EVM.ChainTag
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

package finalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/certen/bridge-validator/internal/bus"
	"github.com/certen/bridge-validator/internal/store"
	"github.com/certen/bridge-validator/internal/tss"
)

// Coordinator lands a TSS-signed withdrawal on its destination chain,
// reconciles the local store's terminal state, and notifies peers.
type Coordinator struct {
	repo   *store.Repository
	bus    *bus.Bus
	evm    *EVMSubmitter
	asset  *AssetSubmitter
	logger *log.Logger
}

// Config configures a Coordinator.
type Config struct {
	Repo  *store.Repository
	Bus   *bus.Bus
	EVM   *EVMSubmitter
	Asset *AssetSubmitter
}

// New builds a Coordinator and registers the finalization-notice handler
// so peers mark a deposit FinalizationSeen as soon as any party lands it.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		repo:   cfg.Repo,
		bus:    cfg.Bus,
		evm:    cfg.EVM,
		asset:  cfg.Asset,
		logger: log.New(log.Writer(), "[finalize] ", log.LstdFlags|log.Lmicroseconds),
	}
	c.bus.RegisterHandler(MsgFinalized, c.handleNotice)
	return c
}

func (c *Coordinator) handleNotice(env bus.Envelope) {
	var notice FinalizedNotice
	if err := json.Unmarshal(env.Data, &notice); err != nil {
		c.logger.Printf("malformed finalization notice: %v", err)
		return
	}
	if err := c.repo.MarkFinalizationSeen(notice.SourceChain, notice.SourceTxID, notice.IntraTxIndex); err != nil {
		c.logger.Printf("mark finalization seen for %s/%s/%d: %v", notice.SourceChain, notice.SourceTxID, notice.IntraTxIndex, err)
	}
}

// FinalizeEVM submits rec's withdrawal to the EVM leg.
func (c *Coordinator) FinalizeEVM(ctx context.Context, rec *store.DepositRecord, sig *tss.SignResult) error {
	alreadyProcessed, err := c.evm.Submit(ctx, rec, sig)
	sigBytes, _ := tss.FormatEVM(sig)
	return c.reconcile(ctx, rec, sigBytes, alreadyProcessed, err)
}

// FinalizeAsset submits rec's withdrawal to the asset chain leg.
// unsignedTxHex is the template signcoord.Coordinator.AssetDigest
// produced during the signing phase.
func (c *Coordinator) FinalizeAsset(ctx context.Context, rec *store.DepositRecord, unsignedTxHex string, sig *tss.SignResult) error {
	alreadyProcessed, err := c.asset.Submit(ctx, unsignedTxHex, sig)
	sigBytes, _ := tss.FormatAsset(sig)
	return c.reconcile(ctx, rec, sigBytes, alreadyProcessed, err)
}

// reconcile applies the submission outcome to the local store and, on
// success, notifies peers. A transient failure reverts the row to
// pending for a later retry; an "already processed" outcome and a clean
// success both count as finalized.
func (c *Coordinator) reconcile(ctx context.Context, rec *store.DepositRecord, formattedSig []byte, alreadyProcessed bool, submitErr error) error {
	if submitErr != nil && !alreadyProcessed {
		if err := c.repo.StatusUpdate(rec.SourceChain, rec.SourceTxID, rec.IntraTxIndex, store.StatusPending, nil); err != nil {
			c.logger.Printf("revert to pending after failed submission for %s/%s/%d: %v", rec.SourceChain, rec.SourceTxID, rec.IntraTxIndex, err)
		}
		return fmt.Errorf("submit withdrawal: %w", submitErr)
	}

	if err := c.repo.StatusUpdate(rec.SourceChain, rec.SourceTxID, rec.IntraTxIndex, store.StatusFinalized, formattedSig); err != nil {
		return fmt.Errorf("mark finalized: %w", err)
	}

	notice := FinalizedNotice{SourceChain: rec.SourceChain, SourceTxID: rec.SourceTxID, IntraTxIndex: rec.IntraTxIndex}
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal finalization notice: %w", err)
	}
	if err := c.bus.Broadcast(ctx, bus.Envelope{SessionID: rec.SourceTxID, Type: MsgFinalized, Data: payload}); err != nil {
		c.logger.Printf("broadcast finalization notice had partial failures: %v", err)
	}
	return nil
}

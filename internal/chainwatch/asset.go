package chainwatch

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/certen/bridge-validator/internal/assetchain"
	"github.com/certen/bridge-validator/internal/config"
	"github.com/certen/bridge-validator/internal/store"
)

// AssetObserver watches the UTXO-style asset chain for burn deposits
// bound for the EVM leg of the bridge.
type AssetObserver struct {
	mu sync.RWMutex

	client                *assetchain.Client
	requiredConfirmations uint64
	destChainTag          string
	cfg                   *config.Config
	repo                  *store.Repository
	logger                *log.Logger

	lastScanned uint64
}

// NewAssetObserver constructs an observer for the asset-chain leg.
func NewAssetObserver(client *assetchain.Client, cfg *config.Config, repo *store.Repository) *AssetObserver {
	return &AssetObserver{
		client:                client,
		requiredConfirmations: uint64(cfg.Asset.RequiredConfirmations),
		destChainTag:          cfg.EVM.ChainTag,
		cfg:                   cfg,
		repo:                  repo,
		logger:                log.New(log.Writer(), "[Chain:asset] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// Poll advances the cursor to head-requiredConfirmations and upserts any
// burn deposits found in the newly confirmed height range.
func (o *AssetObserver) Poll(ctx context.Context) error {
	head, err := o.client.GetHeight(ctx)
	if err != nil {
		return fmt.Errorf("get chain height: %w", err)
	}
	if head < o.requiredConfirmations {
		return nil
	}
	target := head - o.requiredConfirmations

	o.mu.RLock()
	from := o.lastScanned
	o.mu.RUnlock()

	if from == 0 {
		from = target
	}
	if target <= from {
		return nil
	}

	txs, err := o.client.SearchForTransactions(ctx, from+1, target)
	if err != nil {
		return fmt.Errorf("search for transactions: %w", err)
	}

	for _, tx := range txs {
		rec, err := o.parseTx(tx)
		if err != nil {
			o.logger.Printf("skip tx %s: %v", tx.TxID, err)
			continue
		}
		if err := o.repo.UpsertDeposit(rec); err != nil {
			return fmt.Errorf("upsert deposit %s: %w", tx.TxID, err)
		}
	}

	o.mu.Lock()
	o.lastScanned = target
	o.mu.Unlock()
	return nil
}

// Verify reports whether txID is a confirmed bridge deposit matching the
// claimed intraIndex (always 0: the asset chain carries one deposit per
// transaction).
func (o *AssetObserver) Verify(ctx context.Context, txID string, intraIndex int) (bool, error) {
	rec, err := o.FetchCanonical(ctx, txID, intraIndex)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// FetchCanonical reconstructs the deposit record directly from chain data.
func (o *AssetObserver) FetchCanonical(ctx context.Context, txID string, intraIndex int) (*store.DepositRecord, error) {
	if intraIndex != 0 {
		return nil, nil
	}

	tx, err := o.client.GetTransaction(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", txID, err)
	}
	if tx == nil {
		return nil, nil
	}

	height, err := o.client.GetHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain height: %w", err)
	}
	if height < tx.Height || height-tx.Height < o.requiredConfirmations {
		return nil, nil
	}

	rec, err := o.parseTx(*tx)
	if err != nil {
		return nil, nil
	}
	return rec, nil
}

// parseTx validates and decodes one candidate deposit transaction,
// accepting either the primary BURN-operation shape or the
// transfer-with-memo shape, both of which must carry a well-formed
// bridge service entry.
func (o *AssetObserver) parseTx(tx assetchain.RawTransaction) (*store.DepositRecord, error) {
	assetID, amount, err := tx.DepositFields()
	if err != nil {
		return nil, err
	}

	memo, err := assetchain.FindBridgeMemo(tx.ServiceEntries)
	if err != nil {
		return nil, err
	}
	if err := assetchain.ValidateDestination(memo, o.destChainTag); err != nil {
		return nil, err
	}
	if memo.AssetID != assetID {
		return nil, fmt.Errorf("memo asset id %q does not match burn asset id %q", memo.AssetID, assetID)
	}
	if memo.Amt != amount {
		return nil, fmt.Errorf("memo amount %q does not match burn amount %q", memo.Amt, amount)
	}

	tokenID := assetID
	return &store.DepositRecord{
		SourceChain:  o.cfg.Asset.ChainTag,
		SourceTxID:   tx.TxID,
		IntraTxIndex: 0,
		TokenID:      &tokenID,
		Amount:       amount,
		Receiver:     memo.DstAdd,
		DestChain:    o.destChainTag,
		// Every asset-chain-origin withdrawal mints a bridge-wrapped
		// ERC20 on the EVM leg; there is no native-EVM-asset path from
		// this direction.
		IsWrapped: true,
	}, nil
}

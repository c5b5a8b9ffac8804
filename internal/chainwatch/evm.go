package chainwatch

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/bridge-validator/internal/config"
	"github.com/certen/bridge-validator/internal/store"
)

var (
	fungibleDepositTopic = crypto.Keccak256Hash([]byte("DepositFungible(address,uint256,bytes,string,bool)"))
	nativeDepositTopic   = crypto.Keccak256Hash([]byte("DepositNative(uint256,bytes,string)"))

	fungibleArgs = mustArgs("address", "uint256", "bytes", "string", "bool")
	nativeArgs   = mustArgs("uint256", "bytes", "string")
)

func mustArgs(kinds ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(kinds))
	for _, k := range kinds {
		t, err := abi.NewType(k, "", nil)
		if err != nil {
			panic(fmt.Sprintf("chainwatch: bad abi type %q: %v", k, err))
		}
		args = append(args, abi.Argument{Type: t})
	}
	return args
}

// EVMObserver watches an EVM-style chain's bridge contract for deposit
// events bound for the asset chain.
type EVMObserver struct {
	mu sync.RWMutex

	client                *ethclient.Client
	bridgeContract        common.Address
	requiredConfirmations uint64
	destChainTag          string
	cfg                   *config.Config
	repo                  *store.Repository
	logger                *log.Logger

	lastScanned uint64
}

// NewEVMObserver constructs an observer for the EVM leg of the bridge.
func NewEVMObserver(client *ethclient.Client, cfg *config.Config, repo *store.Repository) *EVMObserver {
	return &EVMObserver{
		client:                client,
		bridgeContract:        common.HexToAddress(cfg.EVM.BridgeContractAddress),
		requiredConfirmations: uint64(cfg.EVM.RequiredConfirmations),
		destChainTag:          cfg.Asset.ChainTag,
		cfg:                   cfg,
		repo:                  repo,
		logger:                log.New(log.Writer(), "[Chain:evm] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// Poll advances the cursor to head-requiredConfirmations and upserts any
// bridge deposit logs found in the newly confirmed range.
func (o *EVMObserver) Poll(ctx context.Context) error {
	head, err := o.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get chain head: %w", err)
	}
	if head < o.requiredConfirmations {
		return nil
	}
	target := head - o.requiredConfirmations

	o.mu.RLock()
	from := o.lastScanned
	o.mu.RUnlock()

	if from == 0 {
		from = target // first run: don't replay full history
	}
	if target <= from {
		return nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from + 1),
		ToBlock:   new(big.Int).SetUint64(target),
		Addresses: []common.Address{o.bridgeContract},
	}

	logs, err := o.client.FilterLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("filter bridge logs: %w", err)
	}

	intraIndex := make(map[common.Hash]int)
	for _, l := range logs {
		// Count every bridge-contract log, as fetch does, so the index
		// matches the position fetch looks up.
		idx := intraIndex[l.TxHash]
		intraIndex[l.TxHash] = idx + 1
		rec, err := o.parseLog(l)
		if err != nil {
			o.logger.Printf("skip unparseable log tx=%s index=%d: %v", l.TxHash.Hex(), l.Index, err)
			continue
		}

		rec.SourceChain = o.cfg.EVM.ChainTag
		rec.SourceTxID = l.TxHash.Hex()
		rec.IntraTxIndex = idx
		rec.DestChain = o.destChainTag

		if err := o.repo.UpsertDeposit(rec); err != nil {
			return fmt.Errorf("upsert deposit %s:%d: %w", rec.SourceTxID, idx, err)
		}
	}

	o.mu.Lock()
	o.lastScanned = target
	o.mu.Unlock()
	return nil
}

// Verify reports whether txID contains a matching bridge deposit log at
// intraIndex with enough confirmations above it.
func (o *EVMObserver) Verify(ctx context.Context, txID string, intraIndex int) (bool, error) {
	rec, err := o.fetch(ctx, txID, intraIndex)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// FetchCanonical reconstructs the deposit record directly from the chain.
func (o *EVMObserver) FetchCanonical(ctx context.Context, txID string, intraIndex int) (*store.DepositRecord, error) {
	return o.fetch(ctx, txID, intraIndex)
}

func (o *EVMObserver) fetch(ctx context.Context, txID string, intraIndex int) (*store.DepositRecord, error) {
	txHash := common.HexToHash(txID)

	receipt, err := o.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, nil // not mined, or unknown: treated as not-yet-visible
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, nil
	}

	head, err := o.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain head: %w", err)
	}
	if head < receipt.BlockNumber.Uint64() || head-receipt.BlockNumber.Uint64() < o.requiredConfirmations {
		return nil, nil // within the confirmation zone: not yet visible
	}

	bridgeLogs := make([]*types.Log, 0, len(receipt.Logs))
	for _, l := range receipt.Logs {
		if l.Address == o.bridgeContract {
			bridgeLogs = append(bridgeLogs, l)
		}
	}
	if intraIndex < 0 || intraIndex >= len(bridgeLogs) {
		return nil, nil
	}

	rec, err := o.parseLog(*bridgeLogs[intraIndex])
	if err != nil {
		return nil, nil
	}
	rec.SourceChain = o.cfg.EVM.ChainTag
	rec.SourceTxID = txHash.Hex()
	rec.IntraTxIndex = intraIndex
	rec.DestChain = o.destChainTag
	return rec, nil
}

// parseLog decodes a bridge contract log into a partially-filled deposit
// record (token/amount/receiver/dest-chain-tag only — identity fields are
// filled in by the caller).
func (o *EVMObserver) parseLog(l types.Log) (*store.DepositRecord, error) {
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}

	switch l.Topics[0] {
	case fungibleDepositTopic:
		values, err := fungibleArgs.Unpack(l.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack fungible deposit: %w", err)
		}
		token := values[0].(common.Address)
		amount := values[1].(*big.Int)
		receiver := values[2].([]byte)
		destTag := values[3].(string)
		isWrapped := values[4].(bool)

		if destTag != o.destChainTag {
			return nil, fmt.Errorf("destination tag %q does not match this leg", destTag)
		}

		var tokenID *string
		if isWrapped {
			assetID, err := o.cfg.MapEVMTokenToAsset(token.Hex())
			if err != nil {
				return nil, fmt.Errorf("map wrapped token: %w", err)
			}
			tokenID = &assetID
		}

		return &store.DepositRecord{
			TokenID:   tokenID,
			Amount:    amount.String(),
			Receiver:  string(receiver),
			IsWrapped: isWrapped,
		}, nil

	case nativeDepositTopic:
		values, err := nativeArgs.Unpack(l.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack native deposit: %w", err)
		}
		amount := values[0].(*big.Int)
		receiver := values[1].([]byte)
		destTag := values[2].(string)

		if destTag != o.destChainTag {
			return nil, fmt.Errorf("destination tag %q does not match this leg", destTag)
		}

		return &store.DepositRecord{
			Amount:   amount.String(),
			Receiver: string(receiver),
		}, nil

	default:
		return nil, fmt.Errorf("log topic %s is not a recognized bridge deposit event", l.Topics[0].Hex())
	}
}

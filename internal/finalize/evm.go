package finalize

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/bridge-validator/internal/config"
	"github.com/certen/bridge-validator/internal/store"
	"github.com/certen/bridge-validator/internal/tss"
)

const withdrawABI = `[
	{"type":"function","name":"withdrawERC20","inputs":[
		{"name":"token","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"receiver","type":"address"},
		{"name":"txHash","type":"bytes32"},
		{"name":"txNonce","type":"uint256"},
		{"name":"isWrapped","type":"bool"},
		{"name":"signatures","type":"bytes[]"}
	]},
	{"type":"function","name":"withdrawNative","inputs":[
		{"name":"amount","type":"uint256"},
		{"name":"receiver","type":"address"},
		{"name":"txHash","type":"bytes32"},
		{"name":"txNonce","type":"uint256"},
		{"name":"signatures","type":"bytes[]"}
	]}
]`

// EVMSubmitter submits withdrawals to the bridge contract's withdrawERC20
// / withdrawNative entry points, paying gas from its own relay account;
// the TSS group signature is what authorizes the withdrawal, not this
// account's key.
type EVMSubmitter struct {
	client         *ethclient.Client
	chainID        *big.Int
	bridgeContract common.Address
	relayKey       *ecdsa.PrivateKey
	abi            abi.ABI
	cfg            *config.Config
	gasLimit       uint64
	maxRetries     int
}

// NewEVMSubmitter builds a submitter for the bridge contract at
// bridgeContractAddr, paying gas from relayKeyHex's account.
func NewEVMSubmitter(client *ethclient.Client, chainID int64, bridgeContractAddr, relayKeyHex string, cfg *config.Config) (*EVMSubmitter, error) {
	parsedABI, err := abi.JSON(strings.NewReader(withdrawABI))
	if err != nil {
		return nil, fmt.Errorf("parse withdraw abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(relayKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse relay private key: %w", err)
	}
	return &EVMSubmitter{
		client:         client,
		chainID:        big.NewInt(chainID),
		bridgeContract: common.HexToAddress(bridgeContractAddr),
		relayKey:       key,
		abi:            parsedABI,
		cfg:            cfg,
		gasLimit:       300_000,
		maxRetries:     5,
	}, nil
}

// Submit sends rec's withdrawal, authorized by sig, to the bridge
// contract. It reports alreadyProcessed=true when the contract had
// already processed this withdrawal.
func (s *EVMSubmitter) Submit(ctx context.Context, rec *store.DepositRecord, sig *tss.SignResult) (bool, error) {
	sigBytes, err := tss.FormatEVM(sig)
	if err != nil {
		return false, fmt.Errorf("format evm signature: %w", err)
	}

	amount, ok := new(big.Int).SetString(rec.Amount, 10)
	if !ok {
		return false, fmt.Errorf("parse amount %q", rec.Amount)
	}
	receiver := common.HexToAddress(rec.Receiver)
	txHash, nonce, err := withdrawalKey(rec)
	if err != nil {
		return false, err
	}

	var callData []byte
	if rec.TokenID != nil {
		evmToken, err := s.cfg.MapAssetToEVMToken(*rec.TokenID)
		if err != nil {
			return false, fmt.Errorf("map token for withdrawal: %w", err)
		}
		callData, err = s.abi.Pack("withdrawERC20", common.HexToAddress(evmToken), amount, receiver, txHash, nonce, rec.IsWrapped, [][]byte{sigBytes})
		if err != nil {
			return false, fmt.Errorf("pack withdrawERC20: %w", err)
		}
	} else {
		callData, err = s.abi.Pack("withdrawNative", amount, receiver, txHash, nonce, [][]byte{sigBytes})
		if err != nil {
			return false, fmt.Errorf("pack withdrawNative: %w", err)
		}
	}

	return s.sendWithRetry(ctx, callData)
}

// withdrawalKey derives the replay-guard key fields from the deposit's
// source-chain identity: the hex source tx id, zero-left-padded to 32
// bytes, plus its intra-tx index as the nonce.
func withdrawalKey(rec *store.DepositRecord) (txHash [32]byte, nonce *big.Int, err error) {
	b, err := hex.DecodeString(strings.TrimPrefix(rec.SourceTxID, "0x"))
	if err != nil {
		return txHash, nil, fmt.Errorf("source tx id %q is not hex: %w", rec.SourceTxID, err)
	}
	if len(b) > 32 {
		return txHash, nil, fmt.Errorf("source tx id %q is longer than 32 bytes", rec.SourceTxID)
	}
	copy(txHash[32-len(b):], b)
	return txHash, big.NewInt(int64(rec.IntraTxIndex)), nil
}

// sendWithRetry sends callData to the bridge contract, escalating gas
// price 20% per retry on underpriced/nonce races. An "already processed"
// revert is reported as alreadyProcessed=true, not as an error: the
// withdrawal is done, just not by this call.
func (s *EVMSubmitter) sendWithRetry(ctx context.Context, callData []byte) (bool, error) {
	publicKey := s.relayKey.Public().(*ecdsa.PublicKey)
	fromAddress := crypto.PubkeyToAddress(*publicKey)

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		nonce, err := s.client.PendingNonceAt(ctx, fromAddress)
		if err != nil {
			return false, fmt.Errorf("get nonce: %w", err)
		}

		gasPrice, err := s.client.SuggestGasPrice(ctx)
		if err != nil {
			return false, fmt.Errorf("get gas price: %w", err)
		}
		minGasPrice := big.NewInt(5 * 1e9)
		if gasPrice.Cmp(minGasPrice) < 0 {
			gasPrice = minGasPrice
		}
		if attempt > 0 {
			multiplier := big.NewInt(int64(100 + 20*attempt))
			gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, multiplier), big.NewInt(100))
		}

		tx := types.NewTransaction(nonce, s.bridgeContract, big.NewInt(0), s.gasLimit, gasPrice, callData)
		signedTx, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.relayKey)
		if err != nil {
			return false, fmt.Errorf("sign transaction: %w", err)
		}

		err = s.client.SendTransaction(ctx, signedTx)
		if err != nil {
			errStr := err.Error()
			if isAlreadyProcessed(errStr) {
				return true, nil
			}
			if isRetryable(errStr) && attempt < s.maxRetries-1 {
				time.Sleep(2 * time.Second)
				continue
			}
			return false, fmt.Errorf("send withdrawal tx after %d attempts: %w", attempt+1, err)
		}

		receipt, err := bind.WaitMined(ctx, s.client, signedTx)
		if err != nil {
			return false, fmt.Errorf("wait for withdrawal receipt: %w", err)
		}
		if receipt.Status == types.ReceiptStatusSuccessful {
			return false, nil
		}
		// A receipt carries no revert reason: replay the call against the
		// mined block to tell an "already processed" revert from others.
		_, callErr := s.client.CallContract(ctx, ethereum.CallMsg{From: fromAddress, To: &s.bridgeContract, Gas: s.gasLimit, Data: callData}, receipt.BlockNumber)
		if callErr != nil && isAlreadyProcessed(callErr.Error()) {
			return true, nil
		}
		return false, fmt.Errorf("withdrawal transaction %s reverted", signedTx.Hash().Hex())
	}
	return false, fmt.Errorf("send withdrawal tx: exhausted %d attempts", s.maxRetries)
}

func isRetryable(errStr string) bool {
	return strings.Contains(errStr, "replacement transaction underpriced") ||
		strings.Contains(errStr, "nonce too low") ||
		strings.Contains(errStr, "already known")
}

func isAlreadyProcessed(errStr string) bool {
	return strings.Contains(strings.ToLower(errStr), "already processed")
}

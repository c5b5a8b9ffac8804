// Package signcoord bridges an agreed withdrawal candidate (from the
// consensus engine) to a threshold-ECDSA signing round and back: it
// builds the chain-specific digest that must be signed, drives the
// tss.Protocol round across the selected signer set, and packages the
// resulting signature in the format the destination chain expects.
package signcoord

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/bridge-validator/internal/assetchain"
	"github.com/certen/bridge-validator/internal/config"
	"github.com/certen/bridge-validator/internal/store"
	"github.com/certen/bridge-validator/internal/tss"
)

// Coordinator drives the signing phase for one party: computing the
// sign-hash (EVM) or fetching the digest (asset chain), running the TSS
// protocol across the selected signer set, and formatting the result for
// submission.
type Coordinator struct {
	cfg        *config.Config
	protocol   tss.Protocol
	keys       *tss.KeyManager
	assetChain *assetchain.Client
}

// New builds a Coordinator.
func New(cfg *config.Config, protocol tss.Protocol, keys *tss.KeyManager, assetChain *assetchain.Client) *Coordinator {
	return &Coordinator{cfg: cfg, protocol: protocol, keys: keys, assetChain: assetChain}
}

// fungibleWithdrawArgs packs an ERC20 withdrawal's fields, including the
// token address and the is_wrapped flag that tells the contract whether
// to mint a bridge-wrapped token or release one already held in custody.
var fungibleWithdrawArgs = abi.Arguments{
	{Type: mustType("address")}, // token
	{Type: mustType("uint256")}, // amount
	{Type: mustType("address")}, // receiver
	{Type: mustType("bytes32")}, // source tx hash
	{Type: mustType("uint256")}, // source tx nonce (intra-tx index)
	{Type: mustType("uint256")}, // chain id
	{Type: mustType("bool")},    // is wrapped
}

// nativeWithdrawArgs packs a native-asset withdrawal's fields, omitting
// the token address and is_wrapped flag that don't apply to it.
var nativeWithdrawArgs = abi.Arguments{
	{Type: mustType("uint256")}, // amount
	{Type: mustType("address")}, // receiver
	{Type: mustType("bytes32")}, // source tx hash
	{Type: mustType("uint256")}, // source tx nonce (intra-tx index)
	{Type: mustType("uint256")}, // chain id
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("signcoord: invalid abi type %q: %v", name, err))
	}
	return t
}

// ComputeSignHash implements consensus.SignHasher for EVM destinations:
// it packs the withdrawal fields the on-chain contract verifies against
// (token, amount, receiver, source tx hash, intra-tx index, chain id,
// and, for fungible withdrawals, is_wrapped), keccak256s them, then
// wraps the result in the EIP-191 personal-message prefix the
// contract's signature recovery expects. chain_id binds the signature
// to this deployment so it cannot be replayed on another EVM chain.
func (c *Coordinator) ComputeSignHash(rec *store.DepositRecord) ([]byte, error) {
	amount, ok := new(big.Int).SetString(rec.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount %q as base-10 integer", rec.Amount)
	}

	receiver := common.HexToAddress(rec.Receiver)

	txHash, err := sourceTxHashBytes32(rec.SourceTxID)
	if err != nil {
		return nil, fmt.Errorf("parse source tx id: %w", err)
	}

	nonce := big.NewInt(int64(rec.IntraTxIndex))
	chainID := big.NewInt(c.cfg.EVM.ChainID)

	var packed []byte
	if rec.TokenID != nil {
		evmToken, err := c.cfg.MapAssetToEVMToken(*rec.TokenID)
		if err != nil {
			return nil, fmt.Errorf("map asset token to evm address: %w", err)
		}
		token := common.HexToAddress(evmToken)
		packed, err = fungibleWithdrawArgs.Pack(token, amount, receiver, txHash, nonce, chainID, rec.IsWrapped)
		if err != nil {
			return nil, fmt.Errorf("pack fungible withdrawal fields: %w", err)
		}
	} else {
		packed, err = nativeWithdrawArgs.Pack(amount, receiver, txHash, nonce, chainID)
		if err != nil {
			return nil, fmt.Errorf("pack native withdrawal fields: %w", err)
		}
	}

	inner := crypto.Keccak256Hash(packed)
	digest := crypto.Keccak256Hash([]byte("\x19Ethereum Signed Message:\n32"), inner.Bytes())
	return digest.Bytes(), nil
}

// sourceTxHashBytes32 hex-decodes a source transaction id (optional 0x
// prefix) and zero-left-pads it to a fixed 32-byte value suitable for
// ABI packing. Ids that are not hex or exceed 32 bytes are rejected.
func sourceTxHashBytes32(sourceTxID string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(sourceTxID, "0x"))
	if err != nil {
		return out, err
	}
	if len(b) > 32 {
		return out, fmt.Errorf("source tx id %q is longer than 32 bytes", sourceTxID)
	}
	copy(out[32-len(b):], b)
	return out, nil
}

// AssetDigest asks the asset-chain wallet to build the unsigned
// withdrawal transaction template and returns its digest. Unlike the EVM
// leg, no local hash construction happens here: the digest is the
// chain's own transaction identifier, produced by emit_asset.
func (c *Coordinator) AssetDigest(ctx context.Context, assetID string, rec *store.DepositRecord) (unsignedTxHex string, digest []byte, err error) {
	return c.assetChain.EmitAsset(ctx, assetchain.EmitAssetParams{
		AssetID:  assetID,
		Amount:   rec.Amount,
		Receiver: rec.Receiver,
	})
}

// Sign drives the TSS protocol across signers to produce a signature over
// digest, using the transport the caller supplies (a bus-backed
// tss.Transport in production, an in-memory one in tests).
func (c *Coordinator) Sign(ctx context.Context, transport tss.Transport, signers []int, digest []byte) (*tss.SignResult, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	var fixed [32]byte
	copy(fixed[:], digest)

	share := c.keys.Keyshare()
	if len(share) == 0 {
		return nil, fmt.Errorf("no keyshare loaded for this party")
	}

	return c.protocol.Sign(ctx, transport, c.cfg.PartyID, signers, share, fixed)
}

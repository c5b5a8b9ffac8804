package finalize

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/certen/bridge-validator/internal/assetchain"
	"github.com/certen/bridge-validator/internal/tss"
)

// AssetSubmitter completes an externally-signed asset-chain withdrawal
// transaction with the TSS group signature and broadcasts it. The
// unsigned transaction template is produced earlier, during the signing
// phase, by emit_asset; the group signature is appended to it here to
// form the wallet's expected `signed_tx_hex` blob.
type AssetSubmitter struct {
	client *assetchain.Client
}

// NewAssetSubmitter builds a submitter bound to the asset chain's wallet
// RPC endpoint.
func NewAssetSubmitter(client *assetchain.Client) *AssetSubmitter {
	return &AssetSubmitter{client: client}
}

// Submit completes unsignedTxHex with sig and broadcasts it.
func (s *AssetSubmitter) Submit(ctx context.Context, unsignedTxHex string, sig *tss.SignResult) (alreadyProcessed bool, err error) {
	sigBytes, err := tss.FormatAsset(sig)
	if err != nil {
		return false, fmt.Errorf("format asset signature: %w", err)
	}

	// The wallet's send-ext-signed endpoint is given the unsigned
	// template with the 64-byte group signature appended; see DESIGN.md
	// for why this concatenation, rather than a richer envelope, is
	// this bridge's signed-transaction wire format.
	signedTxHex := unsignedTxHex + hex.EncodeToString(sigBytes)

	txID, err := s.client.SendExtSignedAssetTx(ctx, signedTxHex)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already") {
			return true, nil
		}
		return false, fmt.Errorf("submit signed asset withdrawal: %w", err)
	}
	if txID == "" {
		return false, fmt.Errorf("asset chain returned empty transaction id")
	}
	return false, nil
}

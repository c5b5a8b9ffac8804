package assetchain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// bridgeServiceID and bridgeInstruction identify a deposit memo among a
// transaction's service entries.
const (
	bridgeServiceID   = "X"
	bridgeInstruction = "D"
)

// FindBridgeMemo locates the bridge service entry among tx's attachments
// and decodes its hex-encoded JSON body.
func FindBridgeMemo(entries []ServiceEntry) (*BridgeMemo, error) {
	for _, e := range entries {
		if e.ServiceID != bridgeServiceID || e.Instruction != bridgeInstruction {
			continue
		}
		raw, err := hexDecode(e.BodyHex)
		if err != nil {
			return nil, fmt.Errorf("decode service entry body: %w", err)
		}
		var memo BridgeMemo
		if err := json.Unmarshal(raw, &memo); err != nil {
			return nil, fmt.Errorf("unmarshal bridge memo: %w", err)
		}
		return &memo, nil
	}
	return nil, fmt.Errorf("no bridge service entry present")
}

// DepositFields extracts the burn amount/asset id from either accepted
// transaction shape: a primary BURN operation, or a transfer carrying
// asset_id_to_burn/amount_to_burn.
func (tx *RawTransaction) DepositFields() (assetID, amount string, err error) {
	if tx.OperationType == "BURN" {
		if tx.AssetID == "" || tx.Amount == "" {
			return "", "", fmt.Errorf("burn operation missing asset id or amount")
		}
		return tx.AssetID, tx.Amount, nil
	}
	if tx.AssetIDToBurn != "" && tx.AmountToBurn != "" {
		return tx.AssetIDToBurn, tx.AmountToBurn, nil
	}
	return "", "", fmt.Errorf("transaction is not a recognized burn/transfer-with-memo deposit")
}

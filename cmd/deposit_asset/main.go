// Command deposit_asset is a development helper that submits a burn
// transaction carrying a bridge memo on the asset chain leg, for
// exercising the observe -> consensus -> sign -> finalize pipeline
// without a real upstream depositor.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/certen/bridge-validator/internal/assetchain"
)

func main() {
	var (
		walletURL = flag.String("wallet-url", "", "asset chain wallet RPC endpoint")
		assetID   = flag.String("asset-id", "", "asset id being deposited")
		amount    = flag.String("amount", "0", "deposit amount, base units, decimal")
		dstAddr   = flag.String("dst-addr", "", "destination chain receiver address, hex")
		dstNet    = flag.String("dst-net", "evm", "destination chain tag")
	)
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *walletURL == "" || *assetID == "" || *dstAddr == "" {
		log.Fatal("wallet-url, asset-id, and dst-addr are required")
	}

	memo := assetchain.BridgeMemo{
		DstAdd:   *dstAddr,
		DstNetID: *dstNet,
		Amt:      *amount,
		AssetID:  *assetID,
	}
	body, err := json.Marshal(memo)
	if err != nil {
		log.Fatalf("marshal bridge memo: %v", err)
	}

	client := assetchain.NewClient("", *walletURL)
	txID, err := client.BurnWithMemo(context.Background(), assetchain.BurnWithMemoParams{
		AssetID:     *assetID,
		Amount:      *amount,
		DstAddress:  *dstAddr,
		DstNetID:    *dstNet,
		ServiceID:   "X",
		Instruction: "D",
		BodyHex:     hex.EncodeToString(body),
	})
	if err != nil {
		log.Fatalf("submit deposit: %v", err)
	}
	fmt.Printf("deposit tx id: %s\n", txID)
}

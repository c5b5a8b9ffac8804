// Command deposit_evm is a development helper that submits a deposit
// transaction to the bridge contract's EVM leg, for exercising the
// observe -> consensus -> sign -> finalize pipeline without a real
// upstream depositor.
package main

import (
	"context"
	"flag"
	"log"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const depositABI = `[
	{"type":"function","name":"depositFungible","inputs":[
		{"name":"token","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"receiver","type":"bytes"},
		{"name":"destNetwork","type":"string"}
	]},
	{"type":"function","name":"depositNative","inputs":[
		{"name":"amount","type":"uint256"},
		{"name":"receiver","type":"bytes"},
		{"name":"destNetwork","type":"string"}
	]}
]`

func main() {
	var (
		rpcURL      = flag.String("rpc-url", "", "EVM chain RPC endpoint")
		bridgeAddr  = flag.String("bridge", "", "bridge contract address")
		privKeyHex  = flag.String("key", "", "depositor private key, hex")
		token       = flag.String("token", "", "ERC20 token address; omit for native")
		amount      = flag.String("amount", "0", "deposit amount, base units, decimal")
		receiver    = flag.String("receiver", "", "destination chain receiver, hex-encoded bytes")
		destNetwork = flag.String("dest-network", "asset", "destination chain tag")
		chainID     = flag.Int64("chain-id", 1337, "EVM chain id")
	)
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *rpcURL == "" || *bridgeAddr == "" || *privKeyHex == "" || *receiver == "" {
		log.Fatal("rpc-url, bridge, key, and receiver are required")
	}

	amt, ok := new(big.Int).SetString(*amount, 10)
	if !ok {
		log.Fatalf("invalid amount %q", *amount)
	}
	receiverBytes := common.FromHex(*receiver)

	parsedABI, err := abi.JSON(strings.NewReader(depositABI))
	if err != nil {
		log.Fatalf("parse abi: %v", err)
	}

	var callData []byte
	if *token == "" {
		callData, err = parsedABI.Pack("depositNative", amt, receiverBytes, *destNetwork)
	} else {
		callData, err = parsedABI.Pack("depositFungible", common.HexToAddress(*token), amt, receiverBytes, *destNetwork)
	}
	if err != nil {
		log.Fatalf("pack deposit call: %v", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(*privKeyHex, "0x"))
	if err != nil {
		log.Fatalf("parse private key: %v", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	ctx := context.Background()
	client, err := ethclient.Dial(*rpcURL)
	if err != nil {
		log.Fatalf("dial %s: %v", *rpcURL, err)
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		log.Fatalf("get nonce: %v", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		log.Fatalf("get gas price: %v", err)
	}

	value := big.NewInt(0)
	if *token == "" {
		value = amt
	}

	tx := types.NewTransaction(nonce, common.HexToAddress(*bridgeAddr), value, 200_000, gasPrice, callData)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(*chainID)), key)
	if err != nil {
		log.Fatalf("sign transaction: %v", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		log.Fatalf("send transaction: %v", err)
	}
	log.Printf("submitted deposit tx %s", signedTx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, client, signedTx)
	if err != nil {
		log.Fatalf("wait for receipt: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Fatalf("deposit transaction %s reverted", signedTx.Hash().Hex())
	}
	log.Printf("deposit confirmed in block %d", receipt.BlockNumber.Uint64())
	os.Exit(0)
}

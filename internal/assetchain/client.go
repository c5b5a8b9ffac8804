// Package assetchain implements the JSON-RPC client for the UTXO-style
// asset chain leg of the bridge: reading confirmed transactions and
// submitting withdrawal transactions signed by the TSS group key.
package assetchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Client is a minimal single-endpoint JSON-RPC 2.0 client, one instance
// each for the daemon (read) and wallet (submission) RPC surfaces.
type Client struct {
	daemonURL string
	walletURL string
	http      *http.Client
	requestID atomic.Int64
}

// NewClient builds a client for the given daemon/wallet RPC endpoints.
func NewClient(daemonURL, walletURL string) *Client {
	return &Client{
		daemonURL: daemonURL,
		walletURL: walletURL,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, endpoint, method string, params, out any) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc call %s: http status %d: %s", method, resp.StatusCode, raw)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("unmarshal rpc result: %w", err)
	}
	return nil
}

// GetHeight returns the daemon's current chain height.
func (c *Client) GetHeight(ctx context.Context) (uint64, error) {
	var out struct {
		Height uint64 `json:"height"`
	}
	if err := c.call(ctx, c.daemonURL, "get_height", nil, &out); err != nil {
		return 0, fmt.Errorf("get_height: %w", err)
	}
	return out.Height, nil
}

// SearchForTransactionsParams requests transactions in a height range.
type SearchForTransactionsParams struct {
	MinHeight uint64 `json:"min_height"`
	MaxHeight uint64 `json:"max_height"`
}

// SearchForTransactions returns every transaction confirmed in the given
// inclusive height range.
func (c *Client) SearchForTransactions(ctx context.Context, minHeight, maxHeight uint64) ([]RawTransaction, error) {
	var out struct {
		Transactions []RawTransaction `json:"transactions"`
	}
	params := SearchForTransactionsParams{MinHeight: minHeight, MaxHeight: maxHeight}
	if err := c.call(ctx, c.daemonURL, "search_for_transactions", params, &out); err != nil {
		return nil, fmt.Errorf("search_for_transactions: %w", err)
	}
	return out.Transactions, nil
}

// GetTransaction fetches one transaction by its hex id, independent of
// any externally claimed contents.
func (c *Client) GetTransaction(ctx context.Context, txID string) (*RawTransaction, error) {
	var out struct {
		Transaction *RawTransaction `json:"transaction"`
	}
	params := map[string]string{"tx_id": txID}
	if err := c.call(ctx, c.daemonURL, "get_transaction", params, &out); err != nil {
		return nil, fmt.Errorf("get_transaction: %w", err)
	}
	return out.Transaction, nil
}

// SendExtSignedAssetTxParams carries a TSS-signed withdrawal transaction
// ready for broadcast.
type SendExtSignedAssetTxParams struct {
	SignedTxHex string `json:"signed_tx_hex"`
}

// SendExtSignedAssetTx submits a finalized, externally-signed withdrawal
// transaction and returns its transaction id.
func (c *Client) SendExtSignedAssetTx(ctx context.Context, signedTxHex string) (string, error) {
	var out struct {
		TxID string `json:"tx_id"`
	}
	params := SendExtSignedAssetTxParams{SignedTxHex: signedTxHex}
	if err := c.call(ctx, c.walletURL, "send_ext_signed_asset_tx", params, &out); err != nil {
		return "", fmt.Errorf("send_ext_signed_asset_tx: %w", err)
	}
	return out.TxID, nil
}

// BurnWithMemoParams requests a burn-with-bridge-memo transaction from
// the wallet: the standard deposit shape for the asset-chain leg.
type BurnWithMemoParams struct {
	AssetID     string `json:"asset_id"`
	Amount      string `json:"amount"`
	DstAddress  string `json:"dst_add"`
	DstNetID    string `json:"dst_net_id"`
	ServiceID   string `json:"service_id"`
	Instruction string `json:"instruction"`
	BodyHex     string `json:"body_hex"`
}

// BurnWithMemo submits a burn transaction carrying a bridge service-entry
// memo, the asset-chain side of a deposit. Used by the deposit_asset
// development helper, not by the party process itself.
func (c *Client) BurnWithMemo(ctx context.Context, p BurnWithMemoParams) (string, error) {
	var out struct {
		TxID string `json:"tx_id"`
	}
	if err := c.call(ctx, c.walletURL, "burn_with_memo", p, &out); err != nil {
		return "", fmt.Errorf("burn_with_memo: %w", err)
	}
	return out.TxID, nil
}

// EmitAssetParams requests an unsigned withdrawal transaction template
// from the wallet, to be completed by the TSS signing round.
type EmitAssetParams struct {
	AssetID  string `json:"asset_id"`
	Amount   string `json:"amount"`
	Receiver string `json:"receiver"`
}

// EmitAsset asks the wallet to build the unsigned transaction template
// and digest that the signing coordinator will submit to the TSS round.
func (c *Client) EmitAsset(ctx context.Context, p EmitAssetParams) (unsignedTxHex string, digest []byte, err error) {
	var out struct {
		UnsignedTxHex string `json:"unsigned_tx_hex"`
		Digest        string `json:"digest_hex"`
	}
	if err := c.call(ctx, c.walletURL, "emit_asset", p, &out); err != nil {
		return "", nil, fmt.Errorf("emit_asset: %w", err)
	}
	digestBytes, err := hexDecode(out.Digest)
	if err != nil {
		return "", nil, fmt.Errorf("decode emit_asset digest: %w", err)
	}
	return out.UnsignedTxHex, digestBytes, nil
}

package assetchain

// RawTransaction is the subset of an asset-chain transaction the bridge
// cares about: height for confirmation counting, a primary burn
// operation (if any), and service entries carrying bridge memos.
type RawTransaction struct {
	TxID           string         `json:"tx_id"`
	Height         uint64         `json:"height"`
	OperationType  string         `json:"operation_type"`
	AssetID        string         `json:"asset_id"`
	Amount         string         `json:"amount"`
	AssetIDToBurn  string         `json:"asset_id_to_burn"`
	AmountToBurn   string         `json:"amount_to_burn"`
	ServiceEntries []ServiceEntry `json:"service_entries"`
}

// ServiceEntry is a generic opaque service-entry attachment on a
// transaction; bridge memos use service_id "X" and instruction "D".
type ServiceEntry struct {
	ServiceID   string `json:"service_id"`
	Instruction string `json:"instruction"`
	BodyHex     string `json:"body_hex"`
}

// BridgeMemo is the decoded JSON body of a bridge service entry.
type BridgeMemo struct {
	DstAdd   string `json:"dst_add"`
	DstNetID string `json:"dst_net_id"`
	Amt      string `json:"amt"`
	AssetID  string `json:"asset_id"`
}

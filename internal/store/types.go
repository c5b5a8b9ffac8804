package store

import "time"

// Status is the deposit lifecycle state: pending, processing, signed, or
// the absorbing finalized state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSigned     Status = "signed"
	StatusFinalized  Status = "finalized"
)

// staleSignedThreshold is the floor below which a signed row is never
// reconsidered by PendingFor. Eligibility additionally requires that no
// finalization broadcast has been observed for the row (see
// FinalizationSeen), so a row is not re-proposed just because its
// finalization happens to take a while.
const staleSignedThreshold = 60 * time.Second

// DepositRecord is the canonical unit of work tracked by the store: one
// observed cross-chain deposit moving through its withdrawal lifecycle.
// Amount is carried as a decimal string end-to-end, never as a float or a
// machine int, to avoid precision loss on large transfers.
type DepositRecord struct {
	SourceChain  string  `json:"source_chain"`
	SourceTxID   string  `json:"source_tx_id"` // hex-encoded opaque bytes
	IntraTxIndex int     `json:"intra_tx_index"`
	TokenID      *string `json:"token_id,omitempty"`
	Amount       string  `json:"amount"`
	Sender       string  `json:"sender,omitempty"`
	Receiver     string  `json:"receiver"`
	DestChain    string  `json:"dest_chain"`
	Status       Status  `json:"status"`
	IsWrapped    bool    `json:"is_wrapped"` // true for a bridge-minted wrapped token, false for the native asset or a custodied token
	Signature    []byte  `json:"signature,omitempty"`

	// FinalizationSeen is set when a deposit-finalized notification (or a
	// local successful submission) has been observed for this id. It gates
	// re-selection of stale `signed` rows independently of wall-clock age.
	FinalizationSeen bool `json:"finalization_seen"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity returns the globally-unique (source_chain, source_tx_id,
// intra_tx_index) triple that identifies this deposit.
func (d *DepositRecord) Identity() Identity {
	return Identity{
		SourceChain:  d.SourceChain,
		SourceTxID:   d.SourceTxID,
		IntraTxIndex: d.IntraTxIndex,
	}
}

// Identity is the globally-unique triple identifying a deposit record.
type Identity struct {
	SourceChain  string
	SourceTxID   string
	IntraTxIndex int
}

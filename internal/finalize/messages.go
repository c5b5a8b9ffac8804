// Package finalize submits an agreed, TSS-signed withdrawal to its
// destination chain, reconciles the local deposit record's terminal
// state, and notifies peers so a slow local retry never re-submits a
// withdrawal another party already landed.
package finalize

// MsgFinalized is broadcast once a withdrawal is confirmed finalized
// (either by successful submission or by an "already processed" revert),
// so peers can mark the row FinalizationSeen without re-deriving it.
const MsgFinalized = "deposit_finalized"

// FinalizedNotice is the payload of MsgFinalized.
type FinalizedNotice struct {
	SourceChain  string `json:"source_chain"`
	SourceTxID   string `json:"source_tx_id"`
	IntraTxIndex int    `json:"intra_tx_index"`
}

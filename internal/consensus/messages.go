// Package consensus implements the single-round proposer/acceptor
// protocol that turns an observed deposit into an agreed, independently
// re-verified withdrawal candidate plus a deterministically chosen
// signer set.
package consensus

const (
	// MsgProposal carries the leader's claimed deposit for a session.
	MsgProposal = "consensus_proposal"
	// MsgResponse carries an acceptor's accept/reject verdict.
	MsgResponse = "consensus_response"
	// MsgSignerSet carries the leader's final signer-set decision.
	MsgSignerSet = "consensus_signer_set"
)

// RejectReason enumerates why an acceptor declined a proposal.
type RejectReason string

const (
	ReasonChainVerificationFailed RejectReason = "chain verification failed"
	ReasonDataMismatch            RejectReason = "data mismatch"
	ReasonSignHashMismatch        RejectReason = "signHash mismatch"
	ReasonAlreadyPastPending      RejectReason = "already past pending"
)

// Proposal is the payload of MsgProposal. SignHash is populated only for
// deterministic destination chains (EVM); asset-chain destinations leave
// it empty since the digest is the chain's own transaction identifier,
// not something the proposer computes ahead of re-verification.
type Proposal struct {
	SourceChain  string `json:"source_chain"`
	SourceTxID   string `json:"source_tx_id"`
	IntraTxIndex int    `json:"intra_tx_index"`
	DestChain    string `json:"dest_chain"`
	TokenID      string `json:"token_id,omitempty"`
	Amount       string `json:"amount"`
	Receiver     string `json:"receiver"`
	SignHash     []byte `json:"sign_hash,omitempty"`
}

// Response is the payload of MsgResponse.
type Response struct {
	Accept bool         `json:"accept"`
	Reason RejectReason `json:"reason,omitempty"`
}

// SignerSetMsg is the payload of MsgSignerSet: the leader's final decision
// binding a signer set to the proposal it was built from.
type SignerSetMsg struct {
	SourceChain  string `json:"source_chain"`
	SourceTxID   string `json:"source_tx_id"`
	IntraTxIndex int    `json:"intra_tx_index"`
	Signers      []int  `json:"signers"`
}

package consensus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/certen/bridge-validator/internal/bus"
	"github.com/certen/bridge-validator/internal/chainwatch"
	"github.com/certen/bridge-validator/internal/scheduler"
	"github.com/certen/bridge-validator/internal/store"
)

// ErrConsensusFailed is returned by RunSession on the proposer side when too few acceptances
// arrive before the round's timeout.
var ErrConsensusFailed = errors.New("consensus: insufficient acceptances")

// SignHasher computes the canonical sign-hash for a deposit destined for
// a deterministic destination chain (EVM). Asset-chain destinations have
// no SignHasher registered: their digest is the chain's own transaction
// identifier, produced later by the signing coordinator, not compared
// here.
type SignHasher interface {
	ComputeSignHash(rec *store.DepositRecord) ([]byte, error)
}

// Engine runs one party's side of the proposer/acceptor protocol.
type Engine struct {
	partyID      int
	totalParties int
	threshold    int
	timeout      time.Duration

	bus        *bus.Bus
	repo       *store.Repository
	observers  map[string]chainwatch.Observer
	signHasher map[string]SignHasher

	logger *log.Logger
}

// Config configures an Engine.
type Config struct {
	PartyID      int
	TotalParties int
	Threshold    int
	Timeout      time.Duration
	Bus          *bus.Bus
	Repo         *store.Repository
	// Observers maps source chain name ("evm", "asset") to the observer
	// acceptors use to independently re-verify a claimed deposit.
	Observers map[string]chainwatch.Observer
	// SignHashers maps destination chain name to the hasher used to
	// validate the proposer's claimed sign-hash. Omit for destinations
	// without a precomputed deterministic digest.
	SignHashers map[string]SignHasher
}

// New builds an Engine and registers the bus equivocation guards for the
// single-proposal message types.
func New(cfg Config) *Engine {
	cfg.Bus.MarkSingleProposal(MsgProposal)
	cfg.Bus.MarkSingleProposal(MsgSignerSet)

	return &Engine{
		partyID:      cfg.PartyID,
		totalParties: cfg.TotalParties,
		threshold:    cfg.Threshold,
		timeout:      cfg.Timeout,
		bus:          cfg.Bus,
		repo:         cfg.Repo,
		observers:    cfg.Observers,
		signHasher:   cfg.SignHashers,
		logger:       log.New(log.Writer(), "[consensus] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// RunSession resolves the session's leader and runs either the proposer
// or acceptor side, returning the agreed deposit and signer set, or
// (nil, nil, nil) if the session ended without a withdrawal candidate
// (no pending deposit, consensus failure, or rejection).
func (e *Engine) RunSession(ctx context.Context, destChain, sessionID string) (*store.DepositRecord, []int, error) {
	leader := scheduler.Leader(sessionID, e.totalParties)
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if leader == e.partyID {
		return e.runProposer(ctx, destChain, sessionID)
	}
	return e.runAcceptor(ctx, sessionID)
}

func (e *Engine) runProposer(ctx context.Context, destChain, sessionID string) (*store.DepositRecord, []int, error) {
	rec, err := e.repo.PendingFor(destChain)
	if err != nil {
		return nil, nil, fmt.Errorf("select pending deposit: %w", err)
	}
	if rec == nil {
		return nil, nil, nil
	}

	if err := e.repo.StatusUpdate(rec.SourceChain, rec.SourceTxID, rec.IntraTxIndex, store.StatusProcessing, nil); err != nil {
		return nil, nil, fmt.Errorf("mark processing: %w", err)
	}

	proposal := Proposal{
		SourceChain:  rec.SourceChain,
		SourceTxID:   rec.SourceTxID,
		IntraTxIndex: rec.IntraTxIndex,
		DestChain:    rec.DestChain,
		Amount:       rec.Amount,
		Receiver:     rec.Receiver,
	}
	if rec.TokenID != nil {
		proposal.TokenID = *rec.TokenID
	}
	if hasher, ok := e.signHasher[rec.DestChain]; ok {
		hash, err := hasher.ComputeSignHash(rec)
		if err != nil {
			e.resetToPending(rec)
			return nil, nil, fmt.Errorf("compute sign hash: %w", err)
		}
		proposal.SignHash = hash
	}

	payload, err := json.Marshal(proposal)
	if err != nil {
		e.resetToPending(rec)
		return nil, nil, fmt.Errorf("marshal proposal: %w", err)
	}
	if err := e.bus.Broadcast(ctx, bus.Envelope{SessionID: sessionID, Type: MsgProposal, Data: payload}); err != nil {
		e.logger.Printf("broadcast proposal had partial failures for session %s: %v", sessionID, err)
	}

	// Bus.Collect is content-blind: it can only count arrivals, not
	// accepting responses specifically. Wait for a response from every
	// other party (the most any session will ever produce) and evaluate
	// acceptances once collection stops, rather than trying to short-
	// circuit on the first threshold-1 envelopes regardless of content.
	needAcceptances := e.threshold - 1
	envs, err := e.bus.Collect(ctx, MsgResponse, sessionID, e.totalParties-1)

	acceptors := make([]int, 0, len(envs))
	for _, env := range envs {
		var resp Response
		if jsonErr := json.Unmarshal(env.Data, &resp); jsonErr != nil {
			continue
		}
		if resp.Accept {
			acceptors = append(acceptors, env.SenderID)
		}
	}
	if len(acceptors) < needAcceptances {
		e.resetToPending(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrConsensusFailed, err)
		}
		return nil, nil, ErrConsensusFailed
	}

	signers := SelectSigners(sessionID, e.partyID, acceptors, e.threshold)

	signerMsg := SignerSetMsg{
		SourceChain:  rec.SourceChain,
		SourceTxID:   rec.SourceTxID,
		IntraTxIndex: rec.IntraTxIndex,
		Signers:      signers,
	}
	payload, err = json.Marshal(signerMsg)
	if err != nil {
		e.resetToPending(rec)
		return nil, nil, fmt.Errorf("marshal signer set: %w", err)
	}
	if err := e.bus.Broadcast(ctx, bus.Envelope{SessionID: sessionID, Type: MsgSignerSet, Data: payload}); err != nil {
		e.logger.Printf("broadcast signer set had partial failures for session %s: %v", sessionID, err)
	}

	return rec, signers, nil
}

func (e *Engine) resetToPending(rec *store.DepositRecord) {
	if err := e.repo.StatusUpdate(rec.SourceChain, rec.SourceTxID, rec.IntraTxIndex, store.StatusPending, nil); err != nil {
		e.logger.Printf("reset to pending failed for %s/%s/%d: %v", rec.SourceChain, rec.SourceTxID, rec.IntraTxIndex, err)
	}
}

func (e *Engine) runAcceptor(ctx context.Context, sessionID string) (*store.DepositRecord, []int, error) {
	envs, err := e.bus.Collect(ctx, MsgProposal, sessionID, 1)
	if err != nil || len(envs) == 0 {
		return nil, nil, nil
	}
	proposalEnv := envs[0]

	// Open question: restrict acceptance to the elected leader of the
	// proposal's own (possibly adjacent-epoch) session id, never any
	// sender claiming to be the proposer.
	leader := proposalEnv.SenderID
	if scheduler.Leader(proposalEnv.SessionID, e.totalParties) != leader {
		return nil, nil, nil
	}

	var proposal Proposal
	if err := json.Unmarshal(proposalEnv.Data, &proposal); err != nil {
		return nil, nil, nil
	}

	observer, ok := e.observers[proposal.SourceChain]
	if !ok {
		e.reject(ctx, leader, proposalEnv.SessionID, ReasonChainVerificationFailed)
		return nil, nil, nil
	}

	canonical, err := observer.FetchCanonical(ctx, proposal.SourceTxID, proposal.IntraTxIndex)
	if err != nil || canonical == nil {
		e.reject(ctx, leader, proposalEnv.SessionID, ReasonChainVerificationFailed)
		return nil, nil, nil
	}

	canonicalToken := ""
	if canonical.TokenID != nil {
		canonicalToken = *canonical.TokenID
	}
	if canonical.Amount != proposal.Amount || canonical.Receiver != proposal.Receiver || canonicalToken != proposal.TokenID {
		e.reject(ctx, leader, proposalEnv.SessionID, ReasonDataMismatch)
		return nil, nil, nil
	}

	if hasher, ok := e.signHasher[proposal.DestChain]; ok {
		want, err := hasher.ComputeSignHash(canonical)
		if err != nil || !bytes.Equal(want, proposal.SignHash) {
			e.reject(ctx, leader, proposalEnv.SessionID, ReasonSignHashMismatch)
			return nil, nil, nil
		}
	}

	if existing, err := e.repo.Lookup(canonical.SourceChain, canonical.SourceTxID, canonical.IntraTxIndex); err == nil {
		if existing.Status != store.StatusPending {
			e.reject(ctx, leader, proposalEnv.SessionID, ReasonAlreadyPastPending)
			return nil, nil, nil
		}
	}

	if err := e.repo.UpsertDeposit(canonical); err != nil {
		e.reject(ctx, leader, proposalEnv.SessionID, ReasonChainVerificationFailed)
		return nil, nil, nil
	}

	accept, err := json.Marshal(Response{Accept: true})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal acceptance: %w", err)
	}
	if err := e.bus.Send(ctx, leader, bus.Envelope{SessionID: proposalEnv.SessionID, Type: MsgResponse, Data: accept}); err != nil {
		return nil, nil, fmt.Errorf("send acceptance: %w", err)
	}

	signerEnvs, err := e.bus.Collect(ctx, MsgSignerSet, proposalEnv.SessionID, 1)
	if err != nil || len(signerEnvs) == 0 {
		return nil, nil, nil
	}
	signerEnv := signerEnvs[0]
	if signerEnv.SenderID != leader {
		return nil, nil, nil
	}

	var signerMsg SignerSetMsg
	if err := json.Unmarshal(signerEnv.Data, &signerMsg); err != nil {
		return nil, nil, nil
	}
	if signerMsg.SourceChain != canonical.SourceChain || signerMsg.SourceTxID != canonical.SourceTxID || signerMsg.IntraTxIndex != canonical.IntraTxIndex {
		return nil, nil, nil
	}

	return canonical, signerMsg.Signers, nil
}

func (e *Engine) reject(ctx context.Context, leader int, sessionID string, reason RejectReason) {
	payload, err := json.Marshal(Response{Accept: false, Reason: reason})
	if err != nil {
		return
	}
	if err := e.bus.Send(ctx, leader, bus.Envelope{SessionID: sessionID, Type: MsgResponse, Data: payload}); err != nil {
		e.logger.Printf("send rejection to leader %d failed: %v", leader, err)
	}
}

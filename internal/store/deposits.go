// Package store implements the local deposit state store: lifecycle
// records, idempotent upserts, and status transitions for deposits moving
// through the withdrawal pipeline.
//
// Failure model: the store is crash-consistent; the next start
// reconstructs from disk via the underlying goleveldb WAL. A row never
// leaks across chain tags because every key is namespaced by
// source_chain/dest_chain. Concurrent callers within the same process see
// linearizable updates on a single row because every mutating operation
// holds Repository's mutex for its full read-modify-write cycle.
package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Repository is the single-party-owned handle onto the deposit state
// store. It is safe for concurrent use; single-row operations are
// linearizable, but multi-row invariants such as "at most one processing
// row per destination chain" are deliberately left to the caller (the
// session coordinator), not enforced here.
type Repository struct {
	mu sync.Mutex
	kv KV
}

// New wraps a KV backend (see Open) in a Repository.
func New(kv KV) *Repository {
	return &Repository{kv: kv}
}

// UpsertDeposit inserts the record if its identifying triple is new,
// otherwise it is a no-op, making observation idempotent under repeated
// chain re-scans.
func (r *Repository) UpsertDeposit(rec *DepositRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pk := primaryKey(rec.Identity())
	existing, err := r.kv.Get(pk)
	if err != nil {
		return fmt.Errorf("get existing deposit: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusPending
	}

	if err := r.put(pk, rec); err != nil {
		return err
	}

	if rec.Status == StatusPending {
		if err := r.kv.Set(pendingIndexKey(rec.DestChain, now.UnixNano(), pk), pk); err != nil {
			return fmt.Errorf("set pending index: %w", err)
		}
	}
	return nil
}

// Lookup returns the record for the given identifying triple.
func (r *Repository) Lookup(sourceChain, sourceTxID string, intraIndex int) (*DepositRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pk := primaryKey(Identity{SourceChain: sourceChain, SourceTxID: sourceTxID, IntraTxIndex: intraIndex})
	return r.get(pk)
}

// PendingFor returns at most one record eligible for proposal: the oldest
// `pending` record for destChain, or, if none, the oldest `signed` record
// older than the staleness threshold for which no finalization broadcast
// has been observed.
func (r *Repository) PendingFor(destChain string) (*DepositRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, pk, err := r.oldestIndexed(pendingIndexPrefix(destChain)); err != nil {
		return nil, err
	} else if rec != nil {
		_ = pk
		return rec, nil
	}

	prefix := signedIndexPrefix(destChain)
	iter, err := r.kv.Iterator(prefix, prefixUpperBound(prefix))
	if err != nil {
		return nil, fmt.Errorf("iterate signed index: %w", err)
	}
	defer iter.Close()

	now := time.Now().UTC()
	for ; iter.Valid(); iter.Next() {
		pk := iter.Value()
		rec, err := r.get(pk)
		if err != nil {
			continue
		}
		if rec.Status != StatusSigned {
			continue // stale index entry from a superseded transition
		}
		if rec.FinalizationSeen {
			continue
		}
		if now.Sub(rec.UpdatedAt) >= staleSignedThreshold {
			return rec, nil
		}
	}
	return nil, nil
}

// oldestIndexed returns the first record referenced by the index prefix,
// skipping stale entries whose row no longer carries the expected status
// family for that index.
func (r *Repository) oldestIndexed(prefix []byte) (*DepositRecord, []byte, error) {
	iter, err := r.kv.Iterator(prefix, prefixUpperBound(prefix))
	if err != nil {
		return nil, nil, fmt.Errorf("iterate index: %w", err)
	}
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		pk := iter.Value()
		rec, err := r.get(pk)
		if err != nil {
			continue
		}
		if rec.Status == StatusPending {
			return rec, pk, nil
		}
	}
	return nil, nil, nil
}

// StatusUpdate performs an atomic single-row status transition. It refuses
// any transition when the current status is already `finalized`.
func (r *Repository) StatusUpdate(sourceChain, sourceTxID string, intraIndex int, newStatus Status, signature []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := Identity{SourceChain: sourceChain, SourceTxID: sourceTxID, IntraTxIndex: intraIndex}
	pk := primaryKey(id)

	rec, err := r.get(pk)
	if err != nil {
		return err
	}

	if rec.Status == StatusFinalized {
		if newStatus == StatusFinalized {
			return nil // idempotent re-observation of finalization
		}
		return ErrFinalized
	}

	if err := validTransition(rec.Status, newStatus); err != nil {
		return err
	}

	oldStatus := rec.Status
	oldCreatedAt := rec.CreatedAt
	oldUpdatedAt := rec.UpdatedAt

	rec.Status = newStatus
	rec.UpdatedAt = time.Now().UTC()
	if signature != nil {
		rec.Signature = signature
	}
	if newStatus == StatusFinalized {
		rec.FinalizationSeen = true
	}

	if err := r.put(pk, rec); err != nil {
		return err
	}

	return r.reindex(pk, rec.DestChain, oldStatus, oldCreatedAt, oldUpdatedAt, rec)
}

// MarkFinalizationSeen records that a finalization broadcast was observed
// for this deposit without otherwise changing its status, so a delayed
// local submission does not re-select an already-finalized-elsewhere row.
func (r *Repository) MarkFinalizationSeen(sourceChain, sourceTxID string, intraIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pk := primaryKey(Identity{SourceChain: sourceChain, SourceTxID: sourceTxID, IntraTxIndex: intraIndex})
	rec, err := r.get(pk)
	if err != nil {
		return err
	}
	rec.FinalizationSeen = true
	return r.put(pk, rec)
}

// validTransition enforces the deposit lifecycle state machine.
func validTransition(from, to Status) error {
	// Finalization is observed, not proposed: any live row may move
	// straight to the absorbing finalized state.
	if to == StatusFinalized && from != StatusFinalized {
		return nil
	}
	switch from {
	case StatusPending:
		if to == StatusProcessing || to == StatusPending {
			return nil
		}
	case StatusProcessing:
		if to == StatusSigned || to == StatusPending {
			return nil
		}
	case StatusSigned:
		if to == StatusFinalized || to == StatusPending {
			return nil
		}
	case StatusFinalized:
		return ErrFinalized
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// reindex updates the pending/signed secondary indices after a status
// transition: it removes any index entry that pointed at the row under its
// previous status and, if the new status is itself indexed, installs a
// fresh entry keyed on the appropriate timestamp.
func (r *Repository) reindex(pk []byte, destChain string, oldStatus Status, oldCreatedAt, oldUpdatedAt time.Time, rec *DepositRecord) error {
	if oldStatus == StatusPending {
		if err := r.kv.Delete(pendingIndexKey(destChain, oldCreatedAt.UnixNano(), pk)); err != nil {
			return fmt.Errorf("delete pending index: %w", err)
		}
	}
	if oldStatus == StatusSigned {
		if err := r.kv.Delete(signedIndexKey(destChain, oldUpdatedAt.UnixNano(), pk)); err != nil {
			return fmt.Errorf("delete signed index: %w", err)
		}
	}

	switch rec.Status {
	case StatusPending:
		if err := r.kv.Set(pendingIndexKey(destChain, rec.CreatedAt.UnixNano(), pk), pk); err != nil {
			return fmt.Errorf("set pending index: %w", err)
		}
	case StatusSigned:
		if err := r.kv.Set(signedIndexKey(destChain, rec.UpdatedAt.UnixNano(), pk), pk); err != nil {
			return fmt.Errorf("set signed index: %w", err)
		}
	}
	return nil
}

func (r *Repository) get(pk []byte) (*DepositRecord, error) {
	raw, err := r.kv.Get(pk)
	if err != nil {
		return nil, fmt.Errorf("get deposit row: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	var rec DepositRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal deposit row: %w", err)
	}
	return &rec, nil
}

func (r *Repository) put(pk []byte, rec *DepositRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal deposit row: %w", err)
	}
	if err := r.kv.Set(pk, raw); err != nil {
		return fmt.Errorf("set deposit row: %w", err)
	}
	return nil
}

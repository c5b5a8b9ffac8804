package bus

import "fmt"

// RegisterHandler installs fn as the handler for msgType. Any envelopes of
// that type buffered before registration are delivered to fn immediately,
// in arrival order, before RegisterHandler returns.
func (b *Bus) RegisterHandler(msgType string, fn func(Envelope)) {
	b.mu.Lock()
	b.handlers[msgType] = fn
	pending := b.buffered[msgType]
	delete(b.buffered, msgType)
	b.mu.Unlock()

	for _, be := range pending {
		fn(be.env)
	}
}

// deliver routes an inbound envelope: it enforces the equivocation guard
// for single-proposal types, records it into the session inbox for
// collectors, wakes any waiting Collect calls, and either invokes the
// registered handler or buffers the envelope until one is registered.
func (b *Bus) deliver(env Envelope, epoch int64) error {
	b.mu.Lock()

	if b.singleProposal[env.Type] {
		key := proposalKey(env.Type, env.SessionID)
		if owner, ok := b.proposalOwner[key]; ok {
			if owner.senderID != env.SenderID {
				b.mu.Unlock()
				return ErrEquivocation
			}
			// same sender retrying; fall through as a normal delivery
		} else {
			b.proposalOwner[key] = proposalRecord{senderID: env.SenderID, epoch: epoch}
		}
	}

	sessions, ok := b.inbox[env.Type]
	if !ok {
		sessions = make(map[string][]Envelope)
		b.inbox[env.Type] = sessions
	}
	sessions[env.SessionID] = append(sessions[env.SessionID], env)

	handler, hasHandler := b.handlers[env.Type]
	waiters := b.waiters[env.Type]

	b.mu.Unlock()

	for _, w := range waiters {
		w.offer(env)
	}

	if hasHandler {
		handler(env)
		return nil
	}

	b.mu.Lock()
	b.buffered[env.Type] = append(b.buffered[env.Type], bufferedEnvelope{env: env, epoch: epoch})
	b.mu.Unlock()
	return nil
}

func proposalKey(msgType, sessionID string) string {
	return fmt.Sprintf("%s/%s", msgType, sessionID)
}

// cleanup discards buffered envelopes, proposal ownership records, and
// session inboxes older than the configured retention window.
func (b *Bus) cleanup(currentEpoch int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := currentEpoch - b.retentionEpochs

	for msgType, items := range b.buffered {
		kept := items[:0]
		for _, it := range items {
			if it.epoch >= cutoff {
				kept = append(kept, it)
			}
		}
		if len(kept) == 0 {
			delete(b.buffered, msgType)
		} else {
			b.buffered[msgType] = kept
		}
	}

	for key, owner := range b.proposalOwner {
		if owner.epoch < cutoff {
			delete(b.proposalOwner, key)
		}
	}

	// The inbox has no per-entry epoch stamp; a session is aged by the
	// epoch suffix of its id (ids without one are kept). Beyond that,
	// each type is capped at maxSessionsPerType sessions, dropping
	// arbitrary ones once over the cap.
	const maxSessionsPerType = 64
	for msgType, sessions := range b.inbox {
		for sessionID := range sessions {
			if _, ep, ok := splitEpoch(sessionID); ok && ep < cutoff {
				delete(sessions, sessionID)
			}
		}
		if len(sessions) <= maxSessionsPerType {
			continue
		}
		for sessionID := range sessions {
			delete(sessions, sessionID)
			if len(sessions) <= maxSessionsPerType {
				break
			}
		}
		_ = msgType
	}
}

package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const authHeader = "X-Bridge-Auth"

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithLogger overrides the default per-component logger.
func WithLogger(logger *log.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithHTTPClient overrides the client used for outbound sends, e.g. to set
// a custom timeout or transport in tests.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Bus) { b.http = client }
}

// WithRetention overrides how many epochs of session state AdvanceEpoch's
// cleanup keeps around before discarding it.
func WithRetention(epochs int64) Option {
	return func(b *Bus) { b.retentionEpochs = epochs }
}

// Bus is one party's handle onto the authenticated message bus: an inbound
// HTTP listener plus an outbound HTTP client, sharing in-memory delivery
// state (buffers, handlers, collection waiters, equivocation guards).
type Bus struct {
	partyID int
	peers   map[int]string
	secret  string

	logger *log.Logger
	http   *http.Client

	retentionEpochs int64

	mu       sync.RWMutex
	handlers map[string]func(Envelope)
	buffered map[string][]bufferedEnvelope

	singleProposal map[string]bool
	proposalOwner  map[string]proposalRecord // "type/session" -> first sender

	waiters map[string][]*collector // msgType -> pending collectors

	inbox map[string]map[string][]Envelope // msgType -> session -> history, for late collectors

	epoch atomic.Int64 // advanced once per scheduler tick via AdvanceEpoch, which also runs cleanup
}

type bufferedEnvelope struct {
	env   Envelope
	epoch int64
}

type proposalRecord struct {
	senderID int
	epoch    int64
}

// New creates a Bus for partyID, with peers mapping party id to host:port.
func New(partyID int, peers map[int]string, secret string, opts ...Option) *Bus {
	b := &Bus{
		partyID:         partyID,
		peers:           peers,
		secret:          secret,
		logger:          log.New(log.Writer(), "[Bus] ", log.LstdFlags|log.Lmicroseconds),
		http:            &http.Client{Timeout: 10 * time.Second},
		retentionEpochs: 8,
		handlers:        make(map[string]func(Envelope)),
		buffered:        make(map[string][]bufferedEnvelope),
		singleProposal:  make(map[string]bool),
		proposalOwner:   make(map[string]proposalRecord),
		waiters:         make(map[string][]*collector),
		inbox:           make(map[string]map[string][]Envelope),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MarkSingleProposal flags msgType as subject to the Byzantine
// equivocation guard: only the first sender to deliver it for a given
// session is accepted until the retention window elapses.
func (b *Bus) MarkSingleProposal(msgType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.singleProposal[msgType] = true
}

// ListenAndServe starts the inbound HTTP listener. It blocks until the
// server stops or ctx is canceled.
func (b *Bus) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/bus", b.handleInbound)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"party_id": b.partyID,
			"status":   "ok",
		})
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("bus listener: %w", err)
		}
		return nil
	}
}

func (b *Bus) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(authHeader) != b.secret {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := b.deliver(env, b.epoch.Load()); err != nil {
		if err == ErrEquivocation {
			b.logger.Printf("dropped equivocating proposal type=%s session=%s sender=%d", env.Type, env.SessionID, env.SenderID)
			w.WriteHeader(http.StatusConflict)
			return
		}
		b.logger.Printf("deliver error: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Send delivers env to peerID's bus endpoint.
func (b *Bus) Send(ctx context.Context, peerID int, env Envelope) error {
	host, ok := b.peers[peerID]
	if !ok {
		return fmt.Errorf("%w: party %d", ErrUnknownPeer, peerID)
	}
	env.SenderID = b.partyID
	if env.MessageID == "" {
		env.MessageID = newMessageID()
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("http://%s/bus", host), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeader, b.secret)

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("send to party %d: %w", peerID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("party %d rejected envelope: status %d", peerID, resp.StatusCode)
	}
	return nil
}

// Broadcast sends env to every configured peer except this party,
// returning the first error encountered (after attempting all sends).
func (b *Bus) Broadcast(ctx context.Context, env Envelope) error {
	var firstErr error
	for id := range b.peers {
		if id == b.partyID {
			continue
		}
		if err := b.Send(ctx, id, env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AdvanceEpoch records the scheduler's current epoch counter and discards
// any buffered or equivocation-guard state older than the retention
// window, per the rolling cleanup requirement.
func (b *Bus) AdvanceEpoch(epoch int64) {
	b.epoch.Store(epoch)
	b.cleanup(epoch)
}

package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// TickFunc is invoked once per epoch for each configured destination
// chain. It is handed the session id the epoch/destChain pair resolves
// to and must not block past the next epoch boundary.
type TickFunc func(ctx context.Context, destChain string, epoch int64, sessionID string)

// Config configures a Loop.
type Config struct {
	// Interval is the session interval; epochs are floor(wall_clock_ms / Interval).
	Interval time.Duration
	// DestChains lists the destination chains a tick fires work for,
	// e.g. []string{"evm", "asset"}.
	DestChains []string
}

// Loop drives TickFunc once per epoch boundary, one tick per configured
// destination chain, until stopped.
type Loop struct {
	mu      sync.Mutex
	cfg     Config
	onTick  TickFunc
	logger  *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// New builds a Loop. onTick is called synchronously per destination
// chain within a single epoch tick; callers that want concurrent
// per-direction work should spawn goroutines inside onTick.
func New(cfg Config, onTick TickFunc) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		cfg:    cfg,
		onTick: onTick,
		logger: log.New(log.Writer(), "[scheduler] ", log.LstdFlags|log.Lmicroseconds),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the wake-on-epoch loop in a background goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("scheduler loop already running")
	}
	l.running = true
	if l.ctx.Err() != nil {
		l.ctx, l.cancel = context.WithCancel(context.Background())
	}
	ctx := l.ctx
	l.mu.Unlock()

	l.logger.Printf("starting session scheduler: interval=%s destinations=%v", l.cfg.Interval, l.cfg.DestChains)
	go l.run(ctx)
	return nil
}

// Stop halts the loop. Safe to call multiple times.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.cancel()
	l.running = false
}

// run sleeps until the next epoch boundary, fires one tick per
// destination chain, then repeats. Unlike a fixed-period ticker, the
// sleep duration is recomputed every iteration so the loop stays
// aligned to epoch boundaries even after a slow tick.
func (l *Loop) run(ctx context.Context) {
	for {
		wait := time.Until(nextBoundary(l.cfg.Interval))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		epoch := CurrentEpoch(l.cfg.Interval)
		for _, dest := range l.cfg.DestChains {
			sessionID := SessionID(dest, epoch)
			l.onTick(ctx, dest, epoch, sessionID)
		}
	}
}

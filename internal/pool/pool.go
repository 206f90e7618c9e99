// Package pool keeps a warm set of booted VMs ready for instant
// acquisition, generalizing the teacher's per-image container channel
// pool to a slot registry: a VM (unlike a pooled container) carries
// per-instance state — port, work directory, key material — that a
// bare channel of IDs cannot express.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/carapaceos/carapaced/internal/carapace"
	"github.com/carapaceos/carapaced/internal/ledger"
	"github.com/carapaceos/carapaced/internal/runner"
)

// Config configures a Pool.
type Config struct {
	TargetSize            int
	MaxSize               int
	PerVMMemoryMB         int
	MaxWarmAge            time.Duration
	DefaultAcquireTimeout time.Duration
	RefillDebounce        time.Duration
	BootRetryDelay        time.Duration

	// NewRunner constructs an un-booted Runner for the pool's base
	// image. The pool calls Boot itself.
	NewRunner func() (*runner.Runner, error)

	// Ledger, when set, receives a best-effort audit event on every
	// slot-state transition. A nil Ledger (or a failed write) never
	// affects pool behavior — it is a passive observer, not the system
	// of record.
	Ledger *ledger.Ledger

	Logger *slog.Logger
}

// Pool maintains a warm set of booted VMs.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	slots       map[string]*Slot
	waiters     []*waiter
	started     bool
	stopping    bool
	refillTimer *time.Timer
	ctx         context.Context
}

// New constructs a Pool. Call Start before Acquire.
func New(cfg Config) *Pool {
	if cfg.RefillDebounce <= 0 {
		cfg.RefillDebounce = 50 * time.Millisecond
	}
	if cfg.BootRetryDelay <= 0 {
		cfg.BootRetryDelay = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:    cfg,
		logger: logger,
		slots:  make(map[string]*Slot),
	}
}

// Start performs the initial fill: it boots TargetSize VMs
// concurrently and returns once the first one reaches warm, or an
// error once every initial boot attempt has failed. Later boot
// failures (handled by refill) never surface here.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.ctx = ctx
	n := p.cfg.TargetSize
	p.mu.Unlock()

	if n <= 0 {
		return nil
	}

	onWarm := make(chan string, n)
	onBootError := make(chan error, n)

	for i := 0; i < n; i++ {
		go p.bootOne(ctx, onWarm, onBootError)
	}

	failures := 0
	var lastErr error
	for {
		select {
		case <-onWarm:
			return nil
		case err := <-onBootError:
			failures++
			lastErr = err
			if failures >= n {
				return fmt.Errorf("pool: all %d initial boot attempts failed: %w: %w", n, lastErr, carapace.ErrBootFailure)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Acquire hands over the oldest warm VM, waiting up to timeout (or
// cfg.DefaultAcquireTimeout when timeout is zero) for one to become
// available.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*runner.Runner, error) {
	if timeout <= 0 {
		timeout = p.cfg.DefaultAcquireTimeout
	}

	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return nil, carapace.ErrPoolStopped
	}

	evicted := p.evictStaleLocked()

	var acquiredID string
	slot := p.pickOldestWarmLocked()
	if slot != nil {
		slot.State = SlotActive
		slot.AcquiredAt = time.Now()
		acquiredID = slot.ID
		p.mu.Unlock()
	} else {
		w := &waiter{
			id:       uuid.NewString(),
			deadline: time.Now().Add(timeout),
			done:     make(chan acquireResult, 1),
		}
		p.waiters = append(p.waiters, w)
		p.mu.Unlock()

		return p.awaitWaiter(ctx, w, timeout, evicted)
	}

	for _, id := range evicted {
		p.recordEvent(id, ledger.KindSlotDead, "stale warm eviction")
	}

	p.recordEvent(acquiredID, ledger.KindSlotActive, "")
	p.scheduleRefill()
	return slot.Runner, nil
}

// awaitWaiter blocks on a freshly-enqueued waiter until it is served,
// its timeout elapses, or ctx is cancelled. Split out of Acquire so
// the warm-slot fast path never pays for a timer it doesn't need.
func (p *Pool) awaitWaiter(ctx context.Context, w *waiter, timeout time.Duration, evicted []string) (*runner.Runner, error) {
	for _, id := range evicted {
		p.recordEvent(id, ledger.KindSlotDead, "stale warm eviction")
	}

	p.scheduleRefill()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-w.done:
		return res.runner, res.err
	case <-timer.C:
		p.removeWaiter(w.id)
		return nil, carapace.ErrPoolExhausted
	case <-ctx.Done():
		p.removeWaiter(w.id)
		return nil, ctx.Err()
	}
}

// Release returns a VM to the pool — which, per the no-recycling
// invariant, never means putting it back to warm. The slot is marked
// dead and dropped, the runner is shut down in the background, and a
// refill is scheduled to replace it.
func (p *Pool) Release(r *runner.Runner) {
	p.mu.Lock()
	var found *Slot
	for id, s := range p.slots {
		if s.Runner == r {
			found = s
			delete(p.slots, id)
			break
		}
	}
	p.mu.Unlock()

	go r.Shutdown(context.Background(), false)

	if found == nil {
		p.logger.Warn("released runner not tracked by any slot")
		return
	}
	p.recordEvent(found.ID, ledger.KindSlotDead, "released")
	p.scheduleRefill()
}

// Stats summarizes the pool's current composition.
type Stats struct {
	Warm          int
	Booting       int
	Active        int
	Target        int
	Max           int
	PerVMMemoryMB int
	OldestWarmAge time.Duration
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{Target: p.cfg.TargetSize, Max: p.cfg.MaxSize, PerVMMemoryMB: p.cfg.PerVMMemoryMB}
	now := time.Now()
	for _, s := range p.slots {
		switch s.State {
		case SlotWarm:
			stats.Warm++
			if age := now.Sub(s.WarmAt); age > stats.OldestWarmAge {
				stats.OldestWarmAge = age
			}
		case SlotBooting:
			stats.Booting++
		case SlotActive:
			stats.Active++
		}
	}
	return stats
}

// StatusLine renders a one-line human-readable summary, generalizing
// the teacher's informal stats log lines.
func (p *Pool) StatusLine() string {
	s := p.Stats()
	memory := units.BytesSize(float64(s.PerVMMemoryMB) * 1024 * 1024)
	return fmt.Sprintf("%d warm, %d booting, %d active, %s/VM, oldest warm %s",
		s.Warm, s.Booting, s.Active, memory, units.HumanDuration(s.OldestWarmAge))
}

// Stop shuts every slot down and rejects any pending waiters.
// Idempotent.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	if p.refillTimer != nil {
		p.refillTimer.Stop()
	}
	waiters := p.waiters
	p.waiters = nil
	slots := make([]*Slot, 0, len(p.slots))
	for _, s := range p.slots {
		slots = append(slots, s)
	}
	p.slots = make(map[string]*Slot)
	p.mu.Unlock()

	for _, w := range waiters {
		select {
		case w.done <- acquireResult{err: carapace.ErrPoolStopped}:
		default:
		}
	}

	var wg sync.WaitGroup
	for _, s := range slots {
		if s.Runner == nil {
			continue
		}
		wg.Add(1)
		go func(r *runner.Runner) {
			defer wg.Done()
			r.Shutdown(ctx, false)
		}(s.Runner)
	}
	wg.Wait()
	return nil
}

// Resize changes the pool's target size (validated 0-16 by the
// caller). Growing kicks the debounced refill immediately; shrinking
// leaves any excess warm slots in place for the next staleness scan or
// Acquire cycle to drain naturally rather than force-killing them.
func (p *Pool) Resize(size int) {
	p.mu.Lock()
	grew := size > p.cfg.TargetSize
	p.cfg.TargetSize = size
	p.mu.Unlock()

	if grew {
		p.scheduleRefill()
	}
}

// evictStaleLocked drops warm slots older than MaxWarmAge and returns
// their IDs so the caller can log the transition once the lock is
// released. Callers must hold p.mu.
func (p *Pool) evictStaleLocked() []string {
	if p.cfg.MaxWarmAge <= 0 {
		return nil
	}
	var evicted []string
	now := time.Now()
	for id, s := range p.slots {
		if s.State == SlotWarm && now.Sub(s.WarmAt) > p.cfg.MaxWarmAge {
			delete(p.slots, id)
			go s.Runner.Shutdown(context.Background(), false)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// pickOldestWarmLocked returns the longest-warm slot, if any. Callers
// must hold p.mu.
func (p *Pool) pickOldestWarmLocked() *Slot {
	var best *Slot
	for _, s := range p.slots {
		if s.State != SlotWarm {
			continue
		}
		if best == nil || s.WarmAt.Before(best.WarmAt) {
			best = s
		}
	}
	return best
}

// recordEvent best-effort logs a slot transition to the ledger, if
// one is configured. A failed write is logged and otherwise ignored.
func (p *Pool) recordEvent(slotID, kind, detail string) {
	if p.cfg.Ledger == nil {
		return
	}
	if err := p.cfg.Ledger.Record(slotID, kind, detail); err != nil {
		p.logger.Warn("ledger write failed", "slot", slotID, "kind", kind, "error", err)
	}
}

func (p *Pool) removeWaiter(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w.id == id {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

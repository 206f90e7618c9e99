package pool

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carapaceos/carapaced/internal/ledger"
)

// scheduleRefill debounces refill: repeated calls within the debounce
// window collapse into a single refill pass.
func (p *Pool) scheduleRefill() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopping {
		return
	}
	if p.refillTimer == nil {
		p.refillTimer = time.AfterFunc(p.cfg.RefillDebounce, p.runRefill)
		return
	}
	p.refillTimer.Reset(p.cfg.RefillDebounce)
}

// runRefill is the refillTimer callback: it computes how many slots
// are needed to reach TargetSize without exceeding MaxSize, and boots
// that many in parallel.
func (p *Pool) runRefill() {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return
	}
	warmOrBooting := 0
	for _, s := range p.slots {
		if s.State == SlotWarm || s.State == SlotBooting {
			warmOrBooting++
		}
	}
	total := len(p.slots)
	ctx := p.ctx
	p.mu.Unlock()

	needed := p.cfg.TargetSize - warmOrBooting
	canBoot := p.cfg.MaxSize - total
	toBoot := needed
	if canBoot < toBoot {
		toBoot = canBoot
	}
	if toBoot <= 0 || ctx == nil {
		return
	}

	for i := 0; i < toBoot; i++ {
		go p.bootOne(ctx, nil, nil)
	}
}

// bootOne boots a single new slot. When notifyWarm/notifyErr are
// non-nil (the initial Start fill), the outcome is also reported
// there; otherwise a failed boot schedules its own retry after
// BootRetryDelay.
func (p *Pool) bootOne(ctx context.Context, notifyWarm chan<- string, notifyErr chan<- error) {
	id := uuid.NewString()
	slot := &Slot{ID: id, State: SlotBooting, CreatedAt: time.Now()}

	p.mu.Lock()
	p.slots[id] = slot
	p.mu.Unlock()
	p.recordEvent(id, ledger.KindSlotCreated, "")

	r, err := p.cfg.NewRunner()
	if err == nil {
		err = r.Boot(ctx)
	}

	if err != nil {
		p.mu.Lock()
		slot.State = SlotDead
		slot.LastErr = err
		delete(p.slots, id)
		p.mu.Unlock()

		p.logger.Error("slot boot failed", "slot", id, "error", err)
		p.recordEvent(id, ledger.KindBootFailed, err.Error())

		if notifyErr != nil {
			notifyErr <- err
		} else {
			time.AfterFunc(p.cfg.BootRetryDelay, p.scheduleRefill)
		}
		return
	}

	p.mu.Lock()
	slot.State = SlotWarm
	slot.WarmAt = time.Now()
	slot.Runner = r
	p.mu.Unlock()
	p.recordEvent(id, ledger.KindSlotWarm, "")

	p.logger.Info("slot warm", "slot", id)

	if notifyWarm != nil {
		notifyWarm <- id
	}

	p.deliverToWaiter(slot)
}

// deliverToWaiter hands a freshly-warm slot directly to the oldest
// still-valid waiter, if any, skipping waiters whose deadline has
// already passed.
func (p *Pool) deliverToWaiter(slot *Slot) {
	p.mu.Lock()

	if slot.State != SlotWarm {
		p.mu.Unlock()
		return
	}

	now := time.Now()
	for len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		if now.After(w.deadline) {
			continue
		}

		slot.State = SlotActive
		slot.AcquiredAt = now
		p.mu.Unlock()

		select {
		case w.done <- acquireResult{runner: slot.Runner}:
		default:
		}
		p.recordEvent(slot.ID, ledger.KindSlotActive, "")
		return
	}
	p.mu.Unlock()
}

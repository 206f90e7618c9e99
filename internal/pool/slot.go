package pool

import (
	"time"

	"github.com/carapaceos/carapaced/internal/runner"
)

// SlotState is a slot's position in the booting -> warm -> active ->
// dead lifecycle. dead is terminal: a dead slot is removed from the
// registry, never reset back to warm. There is no recycling.
type SlotState string

const (
	SlotBooting SlotState = "booting"
	SlotWarm    SlotState = "warm"
	SlotActive  SlotState = "active"
	SlotDead    SlotState = "dead"
)

// Slot tracks one VM's place in the pool alongside its runner.
type Slot struct {
	ID         string
	State      SlotState
	CreatedAt  time.Time
	WarmAt     time.Time
	AcquiredAt time.Time
	LastErr    error
	Runner     *runner.Runner
}

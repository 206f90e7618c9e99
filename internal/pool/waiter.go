package pool

import (
	"time"

	"github.com/carapaceos/carapaced/internal/runner"
)

// acquireResult is delivered to a waiting Acquire call once a slot
// becomes available or the wait is abandoned.
type acquireResult struct {
	runner *runner.Runner
	err    error
}

// waiter is one pending Acquire call, held in FIFO order until a warm
// slot is handed to it, its deadline passes, or the pool stops.
type waiter struct {
	id       string
	deadline time.Time
	done     chan acquireResult
}

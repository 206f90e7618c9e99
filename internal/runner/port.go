package runner

import "sync/atomic"

// portRange is the span of host ports handed out for guest SSH
// forwarding. Spec: base + counter%100 — a fixed 100-slot window,
// which collides once more than 100 runners are alive at once. That
// collision is a known, documented limitation rather than a bug: see
// the module's design notes on port allocation.
const (
	portBase  = 22000
	portRange = 100
)

var portCounter atomic.Uint64

// allocatePort hands out the next port in the bounded range. It does
// not check whether the port is actually free; above portRange
// concurrently booted runners, two can be assigned the same port.
func allocatePort() int {
	n := portCounter.Add(1) - 1
	return portBase + int(n%portRange)
}

package api

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics holds the control server's counters and the daemon's start
// time for a gauge-friendly uptime. Hand-rolled rather than pulled
// from a client library: the teacher has no metrics dependency and
// nothing else in the pack justifies pulling one in for this.
type Metrics struct {
	startedAt time.Time

	acquireTotal       atomic.Int64
	acquireErrorsTotal atomic.Int64
	releaseTotal       atomic.Int64
	runTotal           atomic.Int64
	runErrorsTotal     atomic.Int64
}

func newMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

// gaugeSource supplies the live values metrics can't track with a
// simple counter: the pool's composition at scrape time.
type gaugeSource interface {
	activeCount() int
	poolWarm() int
	poolBooting() int
}

// render produces the Prometheus text exposition format.
func (m *Metrics) render(g gaugeSource) string {
	var b strings.Builder

	writeCounter(&b, "acquire_total", "Total pool acquire calls.", m.acquireTotal.Load())
	writeCounter(&b, "acquire_errors_total", "Acquire calls that returned an error.", m.acquireErrorsTotal.Load())
	writeCounter(&b, "release_total", "Total pool release calls.", m.releaseTotal.Load())
	writeCounter(&b, "run_total", "Total commands run inside a VM.", m.runTotal.Load())
	writeCounter(&b, "run_errors_total", "Commands whose shell transport failed.", m.runErrorsTotal.Load())

	writeGauge(&b, "active_vms", "VMs currently checked out via the registry.", int64(g.activeCount()))
	writeGauge(&b, "pool_warm", "Slots currently warm.", int64(g.poolWarm()))
	writeGauge(&b, "pool_booting", "Slots currently booting.", int64(g.poolBooting()))
	writeGauge(&b, "uptime_seconds", "Seconds since the daemon started.", int64(time.Since(m.startedAt).Seconds()))

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value int64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
}

func writeGauge(b *strings.Builder, name, help string, value int64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, help, name, name, value)
}

package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carapaceos/carapaced/internal/runner"
)

// activeVM is one runner currently checked out of the pool and visible
// to API callers under an opaque ID.
type activeVM struct {
	id         string
	runner     *runner.Runner
	acquiredAt time.Time
	metadata   map[string]string
}

// registry tracks every runner currently acquired through the control
// server, so /vms, /vms/{id}/run, and /vms/{id}/release can address a
// VM by an ID the pool itself knows nothing about.
type registry struct {
	mu  sync.Mutex
	vms map[string]*activeVM
}

func newRegistry() *registry {
	return &registry{vms: make(map[string]*activeVM)}
}

// add registers a freshly-acquired runner and mints its public ID.
func (reg *registry) add(r *runner.Runner, metadata map[string]string) *activeVM {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	vm := &activeVM{
		id:         uuid.NewString(),
		runner:     r,
		acquiredAt: time.Now(),
		metadata:   metadata,
	}
	reg.vms[vm.id] = vm
	return vm
}

// get looks up an active VM by ID. A removed or never-registered ID
// is not found, never reused.
func (reg *registry) get(id string) (*activeVM, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	vm, ok := reg.vms[id]
	return vm, ok
}

// remove drops a VM from the registry, returning it if present.
func (reg *registry) remove(id string) (*activeVM, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	vm, ok := reg.vms[id]
	if ok {
		delete(reg.vms, id)
	}
	return vm, ok
}

// list returns every currently active VM, in no particular order.
func (reg *registry) list() []*activeVM {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*activeVM, 0, len(reg.vms))
	for _, vm := range reg.vms {
		out = append(out, vm)
	}
	return out
}

// drain removes and returns every active VM, used on shutdown.
func (reg *registry) drain() []*activeVM {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*activeVM, 0, len(reg.vms))
	for _, vm := range reg.vms {
		out = append(out, vm)
	}
	reg.vms = make(map[string]*activeVM)
	return out
}

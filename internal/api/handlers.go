package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/carapaceos/carapaced/internal/carapace"
	"github.com/carapaceos/carapaced/internal/runner"
)

func decodeJSONBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return wrapBodyErr(err)
	}
	return nil
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ActiveVMs     int    `json:"active_vms"`
	PoolWarm      int    `json:"pool_warm"`
	PoolBooting   int    `json:"pool_booting"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.metrics.startedAt).Seconds()),
		ActiveVMs:     s.activeCount(),
		PoolWarm:      stats.Warm,
		PoolBooting:   stats.Booting,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(s.metrics.render(s)))
}

type vmView struct {
	ID         string            `json:"id"`
	AcquiredAt time.Time         `json:"acquired_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type historyEntry struct {
	SlotID string    `json:"slot_id"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

const listVMsHistoryLimit = 50

// handleListVMs reports the live registry plus, when a ledger is
// configured, the most recent slot-transition history recorded there
// — the only way to see anything at all here right after a daemon
// restart, since the in-memory registry starts empty.
func (s *Server) handleListVMs(w http.ResponseWriter, r *http.Request) {
	vms := s.reg.list()
	out := make([]vmView, 0, len(vms))
	for _, vm := range vms {
		out = append(out, vmView{ID: vm.id, AcquiredAt: vm.acquiredAt, Metadata: vm.metadata})
	}

	resp := map[string]any{"vms": out}

	if s.ledger != nil {
		events, err := s.ledger.Recent(listVMsHistoryLimit)
		if err != nil {
			s.logger.Warn("ledger read failed", "error", err)
		} else {
			history := make([]historyEntry, 0, len(events))
			for _, e := range events {
				history = append(history, historyEntry{SlotID: e.SlotID, Kind: e.Kind, Detail: e.Detail, At: e.At})
			}
			resp["history"] = history
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type acquireRequest struct {
	TimeoutMs int               `json:"timeout_ms"`
	Metadata  map[string]string `json:"metadata"`
}

type acquireResponse struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if r.ContentLength != 0 {
		if err := decodeJSONBody(r, &req); err != nil {
			s.metrics.acquireErrorsTotal.Add(1)
			writeError(w, err)
			return
		}
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	rn, err := s.pool.Acquire(r.Context(), timeout)
	s.metrics.acquireTotal.Add(1)
	if err != nil {
		s.metrics.acquireErrorsTotal.Add(1)
		writeError(w, err)
		return
	}

	vm := s.reg.add(rn, req.Metadata)
	writeJSON(w, http.StatusOK, acquireResponse{
		ID:       vm.id,
		Endpoint: fmt.Sprintf("127.0.0.1:%d", rn.Port()),
	})
}

type runRequest struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type runResponse struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	vm, ok := s.lookupVM(w, r)
	if !ok {
		return
	}

	var req runRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Command == "" {
		writeError(w, fmt.Errorf("run: command is required: %w", carapace.ErrUsage))
		return
	}

	opts := runner.RunOptions{Timeout: time.Duration(req.TimeoutSeconds) * time.Second}
	start := time.Now()
	res, err := vm.runner.Run(r.Context(), req.Command, opts)
	s.metrics.runTotal.Add(1)
	if err != nil {
		s.metrics.runErrorsTotal.Add(1)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
		DurationMs: time.Since(start).Milliseconds(),
	})
}

type pipelineRequest struct {
	Commands []string `json:"commands"`
	// StopOnError defaults to true when omitted from the request body,
	// matching runner.PipelineOptions' default.
	StopOnError    *bool `json:"stop_on_error"`
	TimeoutSeconds int   `json:"timeout_seconds"`
}

type pipelineResponse struct {
	Results []runResponse `json:"results"`
	Stopped bool          `json:"stopped"`
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	vm, ok := s.lookupVM(w, r)
	if !ok {
		return
	}

	var req pipelineRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Commands) == 0 {
		writeError(w, fmt.Errorf("pipeline: commands is required: %w", carapace.ErrUsage))
		return
	}

	opts := runner.PipelineOptions{
		StopOnError: req.StopOnError,
		PerCommand:  runner.RunOptions{Timeout: time.Duration(req.TimeoutSeconds) * time.Second},
	}
	s.metrics.runTotal.Add(int64(len(req.Commands)))
	results, err := vm.runner.RunPipeline(r.Context(), req.Commands, opts)
	if err != nil {
		s.metrics.runErrorsTotal.Add(1)
		writeError(w, err)
		return
	}

	out := make([]runResponse, 0, len(results))
	for _, res := range results {
		out = append(out, runResponse{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode})
	}
	writeJSON(w, http.StatusOK, pipelineResponse{
		Results: out,
		Stopped: len(out) < len(req.Commands),
	})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	vm, ok := s.lookupVM(w, r)
	if !ok {
		return
	}
	s.reg.remove(vm.id)
	s.pool.Release(vm.runner)
	s.metrics.releaseTotal.Add(1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

type poolStatusResponse struct {
	Warm          int    `json:"warm"`
	Booting       int    `json:"booting"`
	Active        int    `json:"active"`
	Target        int    `json:"target"`
	Max           int    `json:"max"`
	PerVMMemoryMB int    `json:"per_vm_memory_mb"`
	Line          string `json:"line"`
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	writeJSON(w, http.StatusOK, poolStatusResponse{
		Warm:          stats.Warm,
		Booting:       stats.Booting,
		Active:        stats.Active,
		Target:        stats.Target,
		Max:           stats.Max,
		PerVMMemoryMB: stats.PerVMMemoryMB,
		Line:          s.pool.StatusLine(),
	})
}

type poolResizeRequest struct {
	Size int `json:"size"`
}

func (s *Server) handlePoolResize(w http.ResponseWriter, r *http.Request) {
	var req poolResizeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Size < 0 || req.Size > 16 {
		writeError(w, fmt.Errorf("pool/resize: size must be 0-16: %w", carapace.ErrUsage))
		return
	}

	s.pool.Resize(req.Size)
	writeJSON(w, http.StatusOK, map[string]int{"new_size": req.Size})
}

// lookupVM resolves the {id} path value against the registry, writing
// a not-found response and returning ok=false on a miss.
func (s *Server) lookupVM(w http.ResponseWriter, r *http.Request) (*activeVM, bool) {
	id := r.PathValue("id")
	vm, ok := s.reg.get(id)
	if !ok {
		writeError(w, fmt.Errorf("vm %q: %w", id, carapace.ErrNotFound))
		return nil, false
	}
	return vm, true
}

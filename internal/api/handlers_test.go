package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carapaceos/carapaced/internal/pool"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	p := pool.New(pool.Config{})
	require.NoError(t, p.Start(context.Background()))
	return NewServer(p, nil, nil)
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t)
	s.reg.add(fakeRunner(t), nil)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	s.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.ActiveVMs)
	assert.GreaterOrEqual(t, body.UptimeSeconds, int64(0))
}

func TestHandleMetricsServesTextExposition(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	s.handleMetrics(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "acquire_total")
}

func TestHandleListVMsReflectsRegistry(t *testing.T) {
	s := testServer(t)
	vm := s.reg.add(fakeRunner(t), map[string]string{"caller": "agent-1"})

	req := httptest.NewRequest("GET", "/vms", nil)
	rec := httptest.NewRecorder()
	s.handleListVMs(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), vm.id)
	assert.Contains(t, rec.Body.String(), "agent-1")
}

func TestHandleRunRejectsEmptyCommand(t *testing.T) {
	s := testServer(t)
	vm := s.reg.add(fakeRunner(t), nil)

	req := httptest.NewRequest("POST", "/vms/"+vm.id+"/run", bytes.NewBufferString(`{"command":""}`))
	req.SetPathValue("id", vm.id)
	rec := httptest.NewRecorder()

	s.handleRun(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRunUnknownVMIsNotFound(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest("POST", "/vms/bogus/run", bytes.NewBufferString(`{"command":"echo hi"}`))
	req.SetPathValue("id", "bogus")
	rec := httptest.NewRecorder()

	s.handleRun(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePipelineRejectsEmptyCommands(t *testing.T) {
	s := testServer(t)
	vm := s.reg.add(fakeRunner(t), nil)

	req := httptest.NewRequest("POST", "/vms/"+vm.id+"/pipeline", bytes.NewBufferString(`{"commands":[]}`))
	req.SetPathValue("id", vm.id)
	rec := httptest.NewRecorder()

	s.handlePipeline(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReleaseOfUnknownVMIsNotFound(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest("POST", "/vms/bogus/release", nil)
	req.SetPathValue("id", "bogus")
	rec := httptest.NewRecorder()

	s.handleRelease(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePoolStatusReportsStats(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest("GET", "/pool/status", nil)
	rec := httptest.NewRecorder()
	s.handlePoolStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"line\"")
}

func TestHandlePoolResizeValidatesRange(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest("POST", "/pool/resize", bytes.NewBufferString(`{"size":32}`))
	rec := httptest.NewRecorder()
	s.handlePoolResize(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePoolResizeAppliesNewTarget(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest("POST", "/pool/resize", bytes.NewBufferString(`{"size":4}`))
	rec := httptest.NewRecorder()
	s.handlePoolResize(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, s.pool.Stats().Target)
}

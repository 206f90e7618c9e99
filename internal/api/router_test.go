package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerRoutesHealthCheck(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHandlerRoutesUnknownVMTo404(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("POST", "/vms/bogus/run", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownDrainsRegistryAndStopsServer(t *testing.T) {
	s := testServer(t)
	s.reg.add(fakeRunner(t), nil)

	httpServer := &http.Server{Addr: "127.0.0.1:0", Handler: s.Handler()}

	err := s.Shutdown(context.Background(), httpServer)
	assert.NoError(t, err)
	assert.Empty(t, s.reg.list())
}

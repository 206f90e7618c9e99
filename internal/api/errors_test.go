package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carapaceos/carapaced/internal/carapace"
)

func TestWriteErrorMapsSentinelsToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("bad: %w", carapace.ErrUsage), http.StatusBadRequest},
		{fmt.Errorf("missing: %w", carapace.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("big: %w", carapace.ErrPayloadTooLarge), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("full: %w", carapace.ErrPoolExhausted), http.StatusServiceUnavailable},
		{fmt.Errorf("stopped: %w", carapace.ErrPoolStopped), http.StatusServiceUnavailable},
		{fmt.Errorf("transport: %w", carapace.ErrTransport), http.StatusBadGateway},
		{fmt.Errorf("weird"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, c.err)
		assert.Equal(t, c.status, rec.Code)
	}
}

func TestWriteJSONSetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]string{"a": "b"})
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"a":"b"}`, rec.Body.String())
}

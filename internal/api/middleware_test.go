package api

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carapaceos/carapaced/internal/carapace"
)

func TestBodySizeMiddlewareRejectsOversizedBody(t *testing.T) {
	s := &Server{}
	handler := s.bodySizeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			writeError(w, wrapBodyErr(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	body := strings.NewReader(strings.Repeat("x", maxBodyBytes+1))
	req := httptest.NewRequest("POST", "/vms/acquire", body)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRequestIDMiddlewareSetsHeaderAndContext(t *testing.T) {
	s := &Server{}
	var gotID string
	handler := s.requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = r.Context().Value(requestIDKey).(string)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), gotID)
}

func TestRequestIDMiddlewareReusesSuppliedHeader(t *testing.T) {
	s := &Server{}
	handler := s.requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "caller-supplied", rec.Header().Get("X-Request-ID"))
}

func TestWrapBodyErrPreservesUsageDetail(t *testing.T) {
	err := wrapBodyErr(errors.New("unexpected EOF"))
	assert.ErrorIs(t, err, carapace.ErrUsage)
	assert.Contains(t, err.Error(), "unexpected EOF")
}

func TestWrapBodyErrMapsBodyTooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/x", strings.NewReader(strings.Repeat("y", 10)))
	req.Body = http.MaxBytesReader(rec, req.Body, 1)

	_, readErr := io.ReadAll(req.Body)
	err := wrapBodyErr(readErr)
	assert.ErrorIs(t, err, carapace.ErrPayloadTooLarge)
}

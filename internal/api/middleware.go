package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/carapaceos/carapaced/internal/carapace"
	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// maxBodyBytes caps request bodies at 1 MiB; anything larger is
// rejected as carapace.ErrPayloadTooLarge before a handler ever sees
// it. There is no authentication layer here — spec.md §1 excludes
// multi-tenant auth — so this cap is the control server's main
// defense against an oversized body.
const maxBodyBytes = 1 << 20

func (s *Server) bodySizeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()[:8]
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bodyTooLarge reports whether err is the sentinel http.MaxBytesReader
// produces once its limit is exceeded, so handlers can map it to
// carapace.ErrPayloadTooLarge.
func bodyTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var maxErr *http.MaxBytesError
	return asMaxBytesError(err, &maxErr)
}

func asMaxBytesError(err error, target **http.MaxBytesError) bool {
	for err != nil {
		if e, ok := err.(*http.MaxBytesError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// wrapBodyErr converts a JSON-decode error into carapace.ErrPayloadTooLarge
// when it was actually caused by the body-size cap, otherwise
// carapace.ErrUsage.
func wrapBodyErr(err error) error {
	if bodyTooLarge(err) {
		return fmt.Errorf("request body exceeds %d bytes: %w", maxBodyBytes, carapace.ErrPayloadTooLarge)
	}
	return fmt.Errorf("invalid request body: %w: %w", err, carapace.ErrUsage)
}

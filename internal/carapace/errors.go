// Package carapace holds error kinds shared across the daemon's
// components, so the control server can map them to HTTP status codes
// without importing every package that might produce them.
package carapace

import "errors"

// Sentinel errors for the kinds named in the specification. Components
// wrap these with fmt.Errorf("...: %w", ErrX) so errors.Is keeps working
// across package boundaries.
var (
	// ErrUsage marks a bad or missing input, rejected at the call site.
	ErrUsage = errors.New("usage error")

	// ErrBootFailure marks a VM that failed to reach readiness: the
	// hypervisor never started, the port never opened, or the shell
	// probe never succeeded. The VM is discarded; the caller decides
	// whether to retry.
	ErrBootFailure = errors.New("boot failure")

	// ErrTransport marks a failure of the remote shell channel itself
	// (subprocess error, timeout), distinct from a non-zero guest exit.
	ErrTransport = errors.New("transport error")

	// ErrPoolExhausted marks an acquire that timed out waiting for a
	// warm VM.
	ErrPoolExhausted = errors.New("pool exhausted")

	// ErrPoolStopped marks an operation invoked during or after pool
	// shutdown.
	ErrPoolStopped = errors.New("pool stopped")

	// ErrNotFound marks an unknown VM identifier.
	ErrNotFound = errors.New("not found")

	// ErrPayloadTooLarge marks a request body over the size cap.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInternal marks an unexpected failure with no more specific kind.
	ErrInternal = errors.New("internal error")
)

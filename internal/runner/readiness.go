package runner

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/carapaceos/carapaced/internal/carapace"
)

// waitReady runs the two-phase readiness probe: first a TCP dial poll
// against the forwarded SSH port, then a shell round-trip retry, since
// an open port does not yet mean sshd is accepting logins.
func waitReady(ctx context.Context, privateKeyPath string, port int, sshWait time.Duration) error {
	if err := waitPortOpen(ctx, port, sshWait); err != nil {
		return err
	}
	return waitShellReady(ctx, privateKeyPath, port)
}

// waitPortOpen polls net.DialTimeout every 2s until the port accepts a
// connection or sshWait elapses.
func waitPortOpen(ctx context.Context, port int, sshWait time.Duration) error {
	deadline := time.Now().Add(sshWait)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	for {
		if ctx.Err() != nil {
			return fmt.Errorf("runner: wait port open: %w: %w", ctx.Err(), carapace.ErrBootFailure)
		}

		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			conn.Close()
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("runner: port %d never opened within %s: %w", port, sshWait, carapace.ErrBootFailure)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("runner: wait port open: %w: %w", ctx.Err(), carapace.ErrBootFailure)
		case <-time.After(2 * time.Second):
		}
	}
}

// shellReadyRetries and shellReadySpacing bound the second readiness
// phase: up to 20 attempts, 3s apart.
const (
	shellReadyRetries = 20
	shellReadySpacing = 3 * time.Second
)

// waitShellReady retries an "echo SSH_OK" round trip until the shell
// channel answers or the retry budget is exhausted.
func waitShellReady(ctx context.Context, privateKeyPath string, port int) error {
	var lastErr error

	for attempt := 0; attempt < shellReadyRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("runner: wait shell ready: %w: %w", ctx.Err(), carapace.ErrBootFailure)
		}

		result, err := runSSH(ctx, privateKeyPath, port, "echo SSH_OK", RunOptions{Timeout: shellReadySpacing})
		if err == nil && result.ExitCode == 0 && result.Stdout == "SSH_OK" {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("runner: unexpected shell probe output %q (exit %d)", result.Stdout, result.ExitCode)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("runner: wait shell ready: %w: %w", ctx.Err(), carapace.ErrBootFailure)
		case <-time.After(shellReadySpacing):
		}
	}

	return fmt.Errorf("runner: shell never became ready after %d attempts: %v: %w", shellReadyRetries, lastErr, carapace.ErrBootFailure)
}

package runner

import (
	"context"
	"os/exec"
	"time"
)

// vmBackend abstracts every external process and probe a Runner drives
// — qemu-img, the hypervisor binary, the two-phase readiness check,
// and the ssh/scp shell channel — so Boot, Run, RunPipeline, Upload,
// Download, and Shutdown can be exercised against a hand-rolled fake
// instead of a real hypervisor and guest network. This mirrors the
// teacher's internal/reaper/interfaces.go seam: small, consumer-shaped
// interfaces wrapping only the operations the caller actually needs,
// with a production implementation that does nothing but forward to
// the real subprocess calls.
type vmBackend interface {
	createOverlay(ctx context.Context, baseImage, workDir string) (string, error)
	startHypervisor(ctx context.Context, binary string, args []string) (*exec.Cmd, <-chan error, error)
	killHypervisor(cmd *exec.Cmd, exited <-chan error)
	waitReady(ctx context.Context, privateKeyPath string, port int, sshWait time.Duration) error
	run(ctx context.Context, privateKeyPath string, port int, cmd string, opts RunOptions) (*RunResult, error)
	copyFile(ctx context.Context, privateKeyPath string, port int, localPath, guestPath string, upload bool) error
}

// execBackend is the production vmBackend: every method forwards to
// the package's real subprocess-driving functions.
type execBackend struct{}

func (execBackend) createOverlay(ctx context.Context, baseImage, workDir string) (string, error) {
	return createOverlay(ctx, baseImage, workDir)
}

func (execBackend) startHypervisor(ctx context.Context, binary string, args []string) (*exec.Cmd, <-chan error, error) {
	return startHypervisor(ctx, binary, args)
}

func (execBackend) killHypervisor(cmd *exec.Cmd, exited <-chan error) {
	killHypervisor(cmd, exited)
}

func (execBackend) waitReady(ctx context.Context, privateKeyPath string, port int, sshWait time.Duration) error {
	return waitReady(ctx, privateKeyPath, port, sshWait)
}

func (execBackend) run(ctx context.Context, privateKeyPath string, port int, cmd string, opts RunOptions) (*RunResult, error) {
	return runSSH(ctx, privateKeyPath, port, cmd, opts)
}

func (execBackend) copyFile(ctx context.Context, privateKeyPath string, port int, localPath, guestPath string, upload bool) error {
	return runSCP(ctx, privateKeyPath, port, localPath, guestPath, upload)
}

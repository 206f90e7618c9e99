package runner

import (
	"context"
	"os/exec"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockVMBackend mocks the vmBackend interface, standing in for
// qemu-img, the hypervisor process, the readiness probe, and the
// ssh/scp shell channel in lifecycle tests.
type MockVMBackend struct {
	mock.Mock
}

func (m *MockVMBackend) createOverlay(ctx context.Context, baseImage, workDir string) (string, error) {
	args := m.Called(ctx, baseImage, workDir)
	return args.String(0), args.Error(1)
}

func (m *MockVMBackend) startHypervisor(ctx context.Context, binary string, hvArgs []string) (*exec.Cmd, <-chan error, error) {
	args := m.Called(ctx, binary, hvArgs)
	var cmd *exec.Cmd
	if v := args.Get(0); v != nil {
		cmd = v.(*exec.Cmd)
	}
	var exited <-chan error
	if v := args.Get(1); v != nil {
		exited = v.(<-chan error)
	}
	return cmd, exited, args.Error(2)
}

func (m *MockVMBackend) killHypervisor(cmd *exec.Cmd, exited <-chan error) {
	m.Called(cmd, exited)
}

func (m *MockVMBackend) waitReady(ctx context.Context, privateKeyPath string, port int, sshWait time.Duration) error {
	args := m.Called(ctx, privateKeyPath, port, sshWait)
	return args.Error(0)
}

func (m *MockVMBackend) run(ctx context.Context, privateKeyPath string, port int, cmd string, opts RunOptions) (*RunResult, error) {
	args := m.Called(ctx, privateKeyPath, port, cmd, opts)
	var res *RunResult
	if v := args.Get(0); v != nil {
		res = v.(*RunResult)
	}
	return res, args.Error(1)
}

func (m *MockVMBackend) copyFile(ctx context.Context, privateKeyPath string, port int, localPath, guestPath string, upload bool) error {
	args := m.Called(ctx, privateKeyPath, port, localPath, guestPath, upload)
	return args.Error(0)
}

// closedErrChan returns a channel that has already delivered err,
// standing in for a hypervisor that exited before readiness.
func closedErrChan(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

// neverChan returns a channel that never delivers, standing in for a
// hypervisor that stays up for the lifetime of the test.
func neverChan() <-chan error {
	return make(chan error)
}

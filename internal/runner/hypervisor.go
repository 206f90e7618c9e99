package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// hypervisorBinary returns the architecture-appropriate QEMU binary
// name. An explicit override always wins.
func hypervisorBinary(override string) string {
	if override != "" {
		return override
	}
	switch runtime.GOARCH {
	case "arm64":
		return "qemu-system-aarch64"
	default:
		return "qemu-system-x86_64"
	}
}

// accelArgs returns the acceleration flags appropriate for the host,
// when enabled: KVM on Linux, Hypervisor.framework on macOS. On Linux
// the KVM flag is added only when /dev/kvm exists; otherwise no flag
// is returned and the VM runs under software emulation. On macOS hvf
// is requested without any probe.
func accelArgs(enable bool) []string {
	if !enable {
		return nil
	}
	switch runtime.GOOS {
	case "linux":
		if _, err := os.Stat("/dev/kvm"); err == nil {
			return []string{"-enable-kvm"}
		}
	case "darwin":
		return []string{"-accel", "hvf"}
	}
	return nil
}

// hypervisorArgs builds the full QEMU argv for one runner's VM. The
// runner never parses this process's output: it is started, watched
// for unexpected exit, and eventually killed, nothing else.
func hypervisorArgs(memoryMB, port int, overlayPath, seedPath, bootLogPath string, accel bool) []string {
	args := []string{
		"-m", fmt.Sprintf("%d", memoryMB),
		"-drive", fmt.Sprintf("file=%s,if=virtio", overlayPath),
		"-cdrom", seedPath,
		"-netdev", fmt.Sprintf("user,id=net0,hostfwd=tcp::%d-:22", port),
		"-device", "virtio-net,netdev=net0",
		"-nographic",
		"-serial", fmt.Sprintf("file:%s", bootLogPath),
	}
	args = append(args, accelArgs(accel)...)
	return args
}

// startHypervisor launches the VM as a child process bound to ctx and
// returns a live handle plus a channel that receives exactly once,
// when the process exits for any reason — reaped by a single
// goroutine started here, so killHypervisor never has to call
// Process.Wait itself (a second concurrent waiter on the same process
// is unsupported). startHypervisor does not block for the process.
func startHypervisor(ctx context.Context, binary string, args []string) (*exec.Cmd, <-chan error, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("runner: start hypervisor: %w", err)
	}

	exited := make(chan error, 1)
	go func() {
		_, err := cmd.Process.Wait()
		exited <- err
	}()

	return cmd, exited, nil
}

// killHypervisor terminates the hypervisor process if still running
// and waits for the reaping goroutine startHypervisor launched to
// confirm it. Safe to call on an already-exited process, and safe to
// call with a nil cmd (boot failed before the process ever started).
func killHypervisor(cmd *exec.Cmd, exited <-chan error) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	if exited != nil {
		<-exited
	}
}

// Package runner boots and drives a single ephemeral VM: building its
// first-boot key pair and seed image, launching the external
// hypervisor against a copy-on-write overlay, waiting for it to become
// reachable, and exposing a remote shell channel for running commands
// and moving files in and out.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/carapaceos/carapaced/internal/carapace"
	"github.com/carapaceos/carapaced/internal/config"
	"github.com/carapaceos/carapaced/internal/seed"
)

// Config configures a single Runner. Fields mirror the VM-specific
// slice of the daemon's configuration rather than the whole of it, so
// the pool can construct one per slot without threading the entire
// top-level config through.
type Config struct {
	BaseImage        string
	MemoryMB         int
	SSHWaitSeconds   int
	HypervisorPath   string // override; empty selects by GOARCH
	EnableAccel      bool
	ReuseSeedKeyPair bool
	Logger           *slog.Logger
}

// Runner drives one VM's full lifecycle. All exported methods besides
// Boot are single-flight per instance: a mutex serializes Run,
// RunPipeline, Upload, and Download so two concurrent callers never
// race the same shell channel.
type Runner struct {
	cfg      Config
	logger   *slog.Logger
	workDir  string
	port     int
	hv       *exec.Cmd
	hvExited <-chan error
	booted   bool

	privateKeyPath string
	backend        vmBackend

	mu         sync.Mutex
	shutdownMu sync.Once
}

// New validates cfg and returns a Runner ready to Boot. It does not
// create a work directory or touch the hypervisor; that happens in
// Boot.
func New(cfg Config) (*Runner, error) {
	if cfg.BaseImage == "" {
		return nil, fmt.Errorf("runner: base image path is required: %w", carapace.ErrUsage)
	}
	if _, err := os.Stat(cfg.BaseImage); err != nil {
		return nil, fmt.Errorf("runner: base image: %w: %w", err, carapace.ErrUsage)
	}
	if !config.ValidImageExt(cfg.BaseImage) {
		return nil, fmt.Errorf("runner: base image %q has an unrecognized extension: %w", cfg.BaseImage, carapace.ErrUsage)
	}
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = 512
	}
	if cfg.SSHWaitSeconds <= 0 {
		cfg.SSHWaitSeconds = 120
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{cfg: cfg, logger: logger, backend: execBackend{}}, nil
}

// WorkDir returns the runner's host-side scratch directory. Empty
// until Boot has run.
func (r *Runner) WorkDir() string { return r.workDir }

// Port returns the forwarded guest SSH port. Zero until Boot has run.
func (r *Runner) Port() int { return r.port }

// Boot brings the VM up: work directory, key pair, seed image,
// overlay disk, hypervisor process, then the two-phase readiness
// probe. Any failure at any step tears down everything created so far
// and returns carapace.ErrBootFailure; a booted Runner is all there is
// or nothing is.
func (r *Runner) Boot(ctx context.Context) error {
	workDir, err := os.MkdirTemp("", "carapace-runner-*")
	if err != nil {
		return fmt.Errorf("runner: create work directory: %w: %w", err, carapace.ErrBootFailure)
	}

	ok := false
	var hv *exec.Cmd
	var hvExited <-chan error
	defer func() {
		if ok {
			return
		}
		if hv != nil {
			r.backend.killHypervisor(hv, hvExited)
		}
		os.RemoveAll(workDir)
	}()

	keys, err := r.obtainKeyPair(workDir)
	if err != nil {
		return fmt.Errorf("runner: %w: %w", err, carapace.ErrBootFailure)
	}

	seedPath := filepath.Join(workDir, "seed.iso")
	if err := seed.Build(seed.BuildOptions{
		AuthorizedKey: keys.publicLine,
		OutputPath:    seedPath,
	}); err != nil {
		return fmt.Errorf("runner: build seed image: %w: %w", err, carapace.ErrBootFailure)
	}

	overlayPath, err := r.backend.createOverlay(ctx, r.cfg.BaseImage, workDir)
	if err != nil {
		return fmt.Errorf("runner: %w: %w", err, carapace.ErrBootFailure)
	}

	port := allocatePort()
	bootLogPath := filepath.Join(workDir, "boot.log")
	binary := hypervisorBinary(r.cfg.HypervisorPath)
	args := hypervisorArgs(r.cfg.MemoryMB, port, overlayPath, seedPath, bootLogPath, r.cfg.EnableAccel)

	r.logger.Info("starting hypervisor", "binary", binary, "port", port, "memory_mb", r.cfg.MemoryMB)

	hv, hvExited, err = r.backend.startHypervisor(ctx, binary, args)
	if err != nil {
		return fmt.Errorf("runner: %w: %w", err, carapace.ErrBootFailure)
	}

	sshWait := time.Duration(r.cfg.SSHWaitSeconds) * time.Second
	readyErr := make(chan error, 1)
	go func() {
		readyErr <- r.backend.waitReady(ctx, keys.privatePath, port, sshWait)
	}()

	select {
	case exitErr := <-hvExited:
		// The channel has already delivered its one value, and the
		// process is already gone: the deferred teardown has nothing
		// left to wait for.
		hvExited = nil
		return fmt.Errorf("runner: hypervisor exited before readiness: %v: %w", exitErr, carapace.ErrBootFailure)
	case err := <-readyErr:
		if err != nil {
			return err
		}
	}

	r.workDir = workDir
	r.port = port
	r.hv = hv
	r.hvExited = hvExited
	r.privateKeyPath = keys.privatePath
	r.booted = true
	ok = true

	r.logger.Info("runner booted", "work_dir", workDir, "port", port)
	return nil
}

// obtainKeyPair generates a fresh key pair, unless ReuseSeedKeyPair
// opts into sharing the one sitting alongside the base image — never
// a silent fallback, and always logged when exercised.
func (r *Runner) obtainKeyPair(workDir string) (keyPairPaths, error) {
	if !r.cfg.ReuseSeedKeyPair {
		return generateKeyPair(workDir)
	}

	sourceDir := filepath.Dir(r.cfg.BaseImage)
	r.logger.Warn("reusing shared seed key pair", "source_dir", sourceDir)
	keys, err := reuseKeyPair(sourceDir, workDir)
	if err != nil {
		r.logger.Warn("shared key pair unavailable, generating a fresh one", "error", err)
		return generateKeyPair(workDir)
	}
	return keys, nil
}

// Run executes cmd inside the guest and returns its captured output
// and exit code.
func (r *Runner) Run(ctx context.Context, cmd string, opts RunOptions) (*RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.booted {
		return nil, fmt.Errorf("runner: not booted: %w", carapace.ErrUsage)
	}
	return r.backend.run(ctx, r.privateKeyPath, r.port, cmd, opts)
}

// PipelineOptions configures RunPipeline.
type PipelineOptions struct {
	// StopOnError stops the pipeline at the first command whose
	// RunResult reports a non-zero exit code. Defaults to true when
	// nil, matching the spec's pipeline semantics.
	StopOnError *bool
	PerCommand  RunOptions
}

// stopOnError resolves opts.StopOnError's true-by-default value.
func (opts PipelineOptions) stopOnError() bool {
	if opts.StopOnError == nil {
		return true
	}
	return *opts.StopOnError
}

// RunPipeline runs cmds in order over the same shell channel,
// returning one RunResult per attempted command.
func (r *Runner) RunPipeline(ctx context.Context, cmds []string, opts PipelineOptions) ([]RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.booted {
		return nil, fmt.Errorf("runner: not booted: %w", carapace.ErrUsage)
	}

	stopOnError := opts.stopOnError()
	results := make([]RunResult, 0, len(cmds))
	for _, cmd := range cmds {
		res, err := r.backend.run(ctx, r.privateKeyPath, r.port, cmd, opts.PerCommand)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
		if res.ExitCode != 0 && stopOnError {
			break
		}
	}
	return results, nil
}

// Upload copies a local file into the guest at guestPath.
func (r *Runner) Upload(ctx context.Context, localPath, guestPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.booted {
		return fmt.Errorf("runner: not booted: %w", carapace.ErrUsage)
	}
	return r.backend.copyFile(ctx, r.privateKeyPath, r.port, localPath, guestPath, true)
}

// Download copies a file out of the guest to localPath.
func (r *Runner) Download(ctx context.Context, guestPath, localPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.booted {
		return fmt.Errorf("runner: not booted: %w", carapace.ErrUsage)
	}
	return r.backend.copyFile(ctx, r.privateKeyPath, r.port, guestPath, localPath, false)
}

// Shutdown tears the VM down: a best-effort in-guest poweroff with a
// short grace period, then an unconditional kill of the hypervisor
// process. It never returns a non-nil error to the caller — failures
// are logged, not propagated — and is safe to call more than once.
func (r *Runner) Shutdown(ctx context.Context, keepWorkDir bool) error {
	r.shutdownMu.Do(func() {
		r.doShutdown(ctx, keepWorkDir)
	})
	return nil
}

func (r *Runner) doShutdown(ctx context.Context, keepWorkDir bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.booted {
		graceCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if _, err := r.backend.run(graceCtx, r.privateKeyPath, r.port, "sudo poweroff", RunOptions{}); err != nil {
			r.logger.Warn("graceful poweroff failed", "error", err)
		}
		cancel()
	}

	r.backend.killHypervisor(r.hv, r.hvExited)

	if r.workDir == "" {
		return
	}

	if bootLog := filepath.Join(r.workDir, "boot.log"); fileExists(bootLog) {
		dst := filepath.Join(os.TempDir(), fmt.Sprintf("carapace-bootlog-%s", filepath.Base(r.workDir)))
		if data, err := os.ReadFile(bootLog); err == nil {
			_ = os.WriteFile(dst, data, 0o644)
		}
	}

	if !keepWorkDir {
		if err := os.RemoveAll(r.workDir); err != nil {
			r.logger.Warn("failed to remove work directory", "work_dir", r.workDir, "error", err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

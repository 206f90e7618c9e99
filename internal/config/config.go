package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults holds per-VM resource and timeout defaults applied when a
// caller doesn't override them.
type Defaults struct {
	MemoryMB         int `yaml:"memory_mb"`
	SSHWaitSeconds   int `yaml:"ssh_wait_seconds"`
	MaxRunTimeoutMs  int `yaml:"max_run_timeout_ms"`
	ShutdownGraceMs  int `yaml:"shutdown_grace_ms"`
}

// PoolConfig configures the warm pool.
type PoolConfig struct {
	TargetSize            int   `yaml:"target_size"`
	MaxSize               int   `yaml:"max_size"`
	MaxWarmAgeSeconds     int   `yaml:"max_warm_age_seconds"`
	DefaultAcquireTimeout int   `yaml:"default_acquire_timeout_ms"`
	RefillDebounceMs      int   `yaml:"refill_debounce_ms"`
	BootRetryDelayMs      int   `yaml:"boot_retry_delay_ms"`
}

// Config is the daemon's top-level configuration, loaded from a YAML
// file and overridden by environment variables.
type Config struct {
	Listen          string     `yaml:"listen"`
	ImagePath       string     `yaml:"image_path"`
	LedgerPath      string     `yaml:"ledger_path"`
	EnableAccel     bool       `yaml:"enable_accel"`
	ArchOverride    string     `yaml:"arch_override"`
	HypervisorPath  string     `yaml:"hypervisor_path"`
	ReuseSeedKeyPair bool      `yaml:"reuse_seed_key_pair"`
	Defaults        Defaults   `yaml:"defaults"`
	Pool            PoolConfig `yaml:"pool"`
}

// Load reads the YAML file at yamlPath, if any, over a set of
// defaults, then applies environment variable overrides. An empty or
// absent yamlPath yields the defaults plus environment overrides.
func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		Listen:      "127.0.0.1:7761",
		ImagePath:   "",
		LedgerPath:  "./carapaced.db",
		EnableAccel: true,
		Defaults: Defaults{
			MemoryMB:        512,
			SSHWaitSeconds:  120,
			MaxRunTimeoutMs: 120000,
			ShutdownGraceMs: 3000,
		},
		Pool: PoolConfig{
			TargetSize:            2,
			MaxSize:               16,
			MaxWarmAgeSeconds:     0,
			DefaultAcquireTimeout: 30000,
			RefillDebounceMs:      50,
			BootRetryDelayMs:      5000,
		},
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides layers environment variables on top of the loaded
// config. CARAPACE_* variables are this daemon's own; ENABLE_ACCEL,
// ARCH_OVERRIDE, HYPERVISOR_BINARY and IMAGE_PATH are named directly
// by the specification's external interface section.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CARAPACE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("IMAGE_PATH"); v != "" {
		cfg.ImagePath = v
	}
	if v := os.Getenv("CARAPACE_LEDGER_PATH"); v != "" {
		cfg.LedgerPath = v
	}
	if v := os.Getenv("ENABLE_ACCEL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EnableAccel = b
		}
	}
	if v := os.Getenv("ARCH_OVERRIDE"); v != "" {
		cfg.ArchOverride = v
	}
	if v := os.Getenv("HYPERVISOR_BINARY"); v != "" {
		cfg.HypervisorPath = v
	}
	if v := os.Getenv("CARAPACE_POOL_TARGET_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.TargetSize = n
		}
	}
	if v := os.Getenv("CARAPACE_POOL_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MaxSize = n
		}
	}
	if v := os.Getenv("CARAPACE_MEMORY_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Defaults.MemoryMB = n
		}
	}
}

// SSHWaitBudget returns the configured SSH-wait budget as a duration.
func (c *Config) SSHWaitBudget() time.Duration {
	return time.Duration(c.Defaults.SSHWaitSeconds) * time.Second
}

// MaxRunTimeout returns the configured default run timeout as a duration.
func (c *Config) MaxRunTimeout() time.Duration {
	return time.Duration(c.Defaults.MaxRunTimeoutMs) * time.Millisecond
}

// ShutdownGrace returns the configured shutdown grace period.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Defaults.ShutdownGraceMs) * time.Millisecond
}

// ValidImageExt reports whether a path looks like a disk image this
// daemon knows how to treat as a backing file. Kept permissive
// (extension-only check) since the image builder that produces these
// files is out of scope.
func ValidImageExt(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".qcow2") || strings.HasSuffix(lower, ".img") || strings.HasSuffix(lower, ".raw")
}

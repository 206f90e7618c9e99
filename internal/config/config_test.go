package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7761", cfg.Listen)
	assert.True(t, cfg.EnableAccel)
	assert.Equal(t, 512, cfg.Defaults.MemoryMB)
	assert.Equal(t, 120, cfg.Defaults.SSHWaitSeconds)
	assert.Equal(t, 2, cfg.Pool.TargetSize)
	assert.Equal(t, 16, cfg.Pool.MaxSize)
}

func TestLoadYAML(t *testing.T) {
	yamlContent := `
listen: "0.0.0.0:9090"
image_path: "/var/lib/carapace/base.qcow2"
enable_accel: false
defaults:
  memory_mb: 1024
pool:
  target_size: 4
  max_size: 8
`
	dir := t.TempDir()
	path := filepath.Join(dir, "carapaced.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Listen)
	assert.Equal(t, "/var/lib/carapace/base.qcow2", cfg.ImagePath)
	assert.False(t, cfg.EnableAccel)
	assert.Equal(t, 1024, cfg.Defaults.MemoryMB)
	assert.Equal(t, 4, cfg.Pool.TargetSize)
	assert.Equal(t, 8, cfg.Pool.MaxSize)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7761", cfg.Listen)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CARAPACE_LISTEN", "127.0.0.1:9999")
	t.Setenv("IMAGE_PATH", "/images/base.qcow2")
	t.Setenv("ENABLE_ACCEL", "false")
	t.Setenv("CARAPACE_POOL_TARGET_SIZE", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Listen)
	assert.Equal(t, "/images/base.qcow2", cfg.ImagePath)
	assert.False(t, cfg.EnableAccel)
	assert.Equal(t, 5, cfg.Pool.TargetSize)
}

func TestValidImageExt(t *testing.T) {
	assert.True(t, ValidImageExt("/data/base.qcow2"))
	assert.True(t, ValidImageExt("/data/BASE.IMG"))
	assert.False(t, ValidImageExt("/data/base.txt"))
}

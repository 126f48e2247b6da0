package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/tangzhangming/wkcjs/internal/vm"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultMatchesVM(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, vm.DefaultConfig(), cfg.VMConfig())
	assert.Equal(t, 0x10000, cfg.Engine.MaxArguments)
	assert.True(t, cfg.Engine.JSONP)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), ConfigFileName, `
[engine]
max_frames = 500
jsonp = false

[jit]
enabled = true
tier_up_threshold = 3
workers = 0
blocklist = ["hot"]

[debug]
hooks = true

[log]
level = "debug"
development = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Engine.MaxFrames)
	assert.False(t, cfg.Engine.JSONP)
	assert.Equal(t, vm.DefaultMaxArguments, cfg.Engine.MaxArguments, "missing keys keep defaults")
	assert.Equal(t, 3, cfg.JIT.TierUpThreshold)
	assert.Equal(t, 0, cfg.JIT.Workers)
	assert.Equal(t, []string{"hot"}, cfg.JIT.Blocklist)
	assert.True(t, cfg.Debug.Hooks)
	assert.True(t, cfg.VMConfig().DebugHooks)

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "wkcjs.yaml", `
engine:
  stack_slots: 4096
jit:
  enabled: false
log:
  level: warn
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Engine.StackSlots)
	assert.False(t, cfg.JIT.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, dir, "broken.toml", "[engine\nmax_frames = "))
	require.Error(t, err)

	_, err = Load(writeFile(t, dir, "bad.toml", "[engine]\nmax_frames = -1\n[log]\nlevel = \"loud\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_frames")
	assert.Contains(t, err.Error(), "log.level")
}

func TestValidateReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Engine.StackSlots = 0
	cfg.Engine.StackLimit = 1024
	cfg.JIT.TierUpThreshold = 0
	cfg.JIT.Workers = -2

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)

	cfg.JIT.Enabled = false
	assert.Len(t, multierr.Errors(cfg.Validate()), 3, "threshold is ignored when the jit is off")
}

func TestFindConfigFile(t *testing.T) {
	root := t.TempDir()
	want := writeFile(t, root, ConfigFileName, "")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	script := writeFile(t, nested, "main.js", "1;")

	assert.Equal(t, want, FindConfigFile(script))
	assert.Equal(t, want, FindConfigFile(nested))
	assert.Equal(t, "", FindConfigFile(filepath.Join(root, "nope")))
}

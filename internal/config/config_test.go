package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFileMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Workspace.Root)
	assert.NotEmpty(t, cfg.Backends.Root)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadWithFileReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
workspace:
  root: /data/yoloflow
backends:
  root: /data/yoloflow/backends
  uv_binary: /usr/local/bin/uv
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/yoloflow", cfg.Workspace.Root)
	assert.Equal(t, "/usr/local/bin/uv", cfg.Backends.UvBinary)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o600))

	t.Setenv("YOLOFLOW_LOGGING_LEVEL", "error")
	t.Setenv("YOLOFLOW_WORKSPACE_ROOT", "/env/ws")
	// Unknown suffixes are ignored rather than guessed at.
	t.Setenv("YOLOFLOW_SOMETHING_ELSE", "x")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "/env/ws", cfg.Workspace.Root)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workspace: ["), 0o600))

	_, err := LoadWithFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Default()
	require.NoError(t, err)
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty workspace root", func(c *Config) { c.Workspace.Root = "" }},
		{"empty backends root", func(c *Config) { c.Backends.Root = "" }},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

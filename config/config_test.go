package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	require.Len(t, cfg.Model.Providers, 2)
	assert.Equal(t, "anthropic", cfg.Model.Providers[0].Name)
	assert.Equal(t, "openai", cfg.Model.Providers[1].Name)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concierge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
model:
  call_timeout: 15s
  providers:
    - name: gemini
      model: gemini-2.0-flash
      api_key_env: MY_GEMINI_KEY
    - name: anthropic
tools:
  timeout: 5s
logging:
  level: debug
  format: text
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Model.CallTimeout.Std())
	require.Len(t, cfg.Model.Providers, 2)
	assert.Equal(t, "gemini", cfg.Model.Providers[0].Name)
	assert.Equal(t, "MY_GEMINI_KEY", cfg.Model.Providers[0].APIKeyEnv)
	assert.Equal(t, 5*time.Second, cfg.Tools.Timeout.Std())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONCIERGE_ADDR", ":7070")
	t.Setenv("CONCIERGE_LOG_LEVEL", "warn")
	t.Setenv("CONCIERGE_TOOL_TIMEOUT", "45s")
	t.Setenv("CONCIERGE_RETAIN_CHECKPOINTS", "10")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	// An explicit but missing file is an error; env overrides apply only to
	// discovered configs.
	assert.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 45*time.Second, cfg.Tools.Timeout.Std())
	assert.Equal(t, 10, cfg.Memory.RetainCheckpoints)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cfg := Defaults()
	cfg.Model.Providers = nil
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Model.Providers = []ProviderConfig{{Name: "mystery"}}
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Model.Providers = []ProviderConfig{{Name: "openai"}, {Name: "openai"}}
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Tools.Timeout = Duration(-time.Second)
	assert.Error(t, cfg.Validate())
}

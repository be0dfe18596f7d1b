package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "hawk-agent-admin", cfg.Agent.User)
	assert.Equal(t, 3, cfg.Agent.Retry.MaxAttempts)
	assert.Equal(t, 1500, cfg.Agent.Retry.BaseDelayMs)
	assert.Equal(t, 5000, cfg.Agent.Retry.MaxDelayMs)
	assert.Equal(t, 18793, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, 10, cfg.Dashboard.TopEntities)
	assert.Empty(t, Validate(&cfg), "defaults must validate clean")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  port: 9999
agent:
  default:
    baseUrl: https://agent.example/v1/chat-messages
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "https://agent.example/v1/chat-messages", cfg.Agent.Default.BaseURL)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Agent.Retry.MaxAttempts)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
}

func TestLoadExpandsSensitiveEnvRefs(t *testing.T) {
	t.Setenv("HAWK_FX_KEY", "sk-fx-123")
	t.Setenv("HAWK_GW_TOKEN", "gw-456")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  auth:
    token: ${HAWK_GW_TOKEN}
agent:
  routes:
    fx-hedge:
      baseUrl: https://fx.example
      apiKey: ${HAWK_FX_KEY}
    npe:
      baseUrl: https://npe.example
      apiKey: ${UNSET_VAR_XYZ}
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gw-456", cfg.Gateway.Auth.Token)
	assert.Equal(t, "sk-fx-123", cfg.Agent.Routes["fx-hedge"].APIKey)
	// Unset variables are left as-is rather than blanked.
	assert.Equal(t, "${UNSET_VAR_XYZ}", cfg.Agent.Routes["npe"].APIKey)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway: [not: a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRawRoundTripAndPathHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw, err := LoadRaw(path)
	require.NoError(t, err)
	assert.Empty(t, raw)

	keyPath, err := ParseConfigPath("gateway.auth.mode")
	require.NoError(t, err)
	SetValueAtPath(raw, keyPath, "none")
	require.NoError(t, SaveRaw(path, raw))

	raw, err = LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(raw, keyPath)
	require.True(t, ok)
	assert.Equal(t, "none", val)

	assert.True(t, UnsetValueAtPath(raw, keyPath))
	_, ok = GetValueAtPath(raw, keyPath)
	assert.False(t, ok)
	assert.False(t, UnsetValueAtPath(raw, keyPath))
}

func TestParseConfigPathRejectsUnsafeKeys(t *testing.T) {
	for _, key := range []string{"__proto__", "gateway.__proto__.x", "constructor.y", ""} {
		_, err := ParseConfigPath(key)
		assert.Error(t, err, key)
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Port = 70000
	cfg.Gateway.Bind = "tailnet"
	cfg.Gateway.Auth.Mode = "password"
	cfg.Logging.Level = "verbose"
	cfg.Agent.Retry.MaxAttempts = 0
	cfg.Agent.Retry.BaseDelayMs = 6000 // > maxDelayMs
	cfg.Dashboard.TopEntities = 0
	cfg.Dashboard.RefreshCron = "every now and then"
	cfg.Agent.Routes = map[string]RouteEntry{"fx-hedge": {}}

	issues := Validate(&cfg)
	paths := make(map[string]bool)
	for _, issue := range issues {
		paths[issue.Path] = true
	}

	for _, want := range []string{
		"gateway.port",
		"gateway.bind",
		"gateway.auth.mode",
		"logging.level",
		"agent.retry.maxAttempts",
		"agent.retry.maxDelayMs",
		"dashboard.topEntities",
		"dashboard.refreshCron",
		"agent.routes.fx-hedge.baseUrl",
	} {
		assert.True(t, paths[want], "expected issue at %s", want)
	}
}

func TestValidateCustomBindRequiresHost(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Bind = "custom"

	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "gateway.host", issues[0].Path)

	cfg.Gateway.Host = "10.0.0.5"
	assert.Empty(t, Validate(&cfg))
}

func TestResolvePathsHonorsHomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HAWKD_HOME", base)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, base, paths.Base)
	assert.Equal(t, filepath.Join(base, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(base, "data", "hawkd.db"), paths.DB)

	require.NoError(t, paths.EnsureDirs())
	info, err := os.Stat(paths.Data)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":8910", cfg.Bridge.Listen)
	require.Equal(t, 5*time.Second, cfg.Bridge.RequestTimeout)
	require.Equal(t, 10<<20, cfg.Bridge.MaxPayload)
	require.Equal(t, "uuid", cfg.Bridge.IDMode)
	require.Equal(t, ":8080", cfg.Gateway.Listen)
	require.NotEmpty(t, cfg.Portal.UserAgent)
	require.Equal(t, cfg.Bridge.RequestTimeout, cfg.Portal.Timeout)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bridge:
  listen: ":9000"
  request_timeout: 2s
  id_mode: cuid
portal:
  base_url: https://sso.example.edu
  timeout: 8s
gateway:
  listen: ":9090"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Bridge.Listen)
	require.Equal(t, 2*time.Second, cfg.Bridge.RequestTimeout)
	require.Equal(t, "cuid", cfg.Bridge.IDMode)
	require.Equal(t, "https://sso.example.edu", cfg.Portal.BaseURL)
	require.Equal(t, 8*time.Second, cfg.Portal.Timeout)
	require.Equal(t, ":9090", cfg.Gateway.Listen)
}

func TestLoadEnvFallbacks(t *testing.T) {
	t.Setenv("KITE_BRIDGE_LISTEN", ":7777")
	t.Setenv("KITE_SSO_BASE_URL", "https://sso.example.edu")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.Bridge.Listen)
	require.Equal(t, "https://sso.example.edu", cfg.Portal.BaseURL)
}

func TestLoadRejectsBadProbeConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bridge:
  probe_interval: 30s
`), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "probe_failures")
}

func TestLoadRejectsUnknownIDMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bridge:
  id_mode: snowflake
`), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "id_mode")
}

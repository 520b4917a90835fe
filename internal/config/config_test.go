package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"NOTION_API_KEY", "NOTION_BASE_URL", "NOTION_VERSION", "NOTION_MAX_RETRIES",
		"NOTION_RATE_LIMIT", "NOTION_TIMEOUT", "NOTION_PARENT_FALLBACK",
		"MCP_HOST", "MCP_PORT", "MCP_PATH", "MCP_AUTH_SECRET", "MCP_AUTH_HEADER",
		"MCP_AUTH_MODE", "MCP_SHUTDOWN_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Notion.APIKey)
	assert.Equal(t, "https://api.notion.com/v1", cfg.Notion.BaseURL)
	assert.Equal(t, "2022-06-28", cfg.Notion.Version)
	assert.Equal(t, 4, cfg.Notion.MaxRetries)
	assert.Equal(t, 3.0, cfg.Notion.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Notion.Timeout)
	assert.True(t, cfg.Notion.ParentFallback)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	assert.Equal(t, "/sse", cfg.Server.Path)
	assert.Equal(t, "Authorization", cfg.Server.AuthHeader)
	assert.Equal(t, "static", cfg.Server.AuthMode)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOTION_API_KEY", "secret_abc")
	t.Setenv("MCP_PORT", "9090")
	t.Setenv("MCP_AUTH_SECRET", "s3cr3t")
	t.Setenv("NOTION_PARENT_FALLBACK", "false")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "secret_abc", cfg.Notion.APIKey)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3cr3t", cfg.Server.AuthSecret)
	assert.False(t, cfg.Notion.ParentFallback)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFileOverridesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_PORT", "9090")
	t.Setenv("FILE_SECRET", "from-env-ref")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7070
  auth_secret: ${FILE_SECRET}
  auth_mode: jwt
notion:
  max_retries: 2
  timeout: 5s
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-env-ref", cfg.Server.AuthSecret)
	assert.Equal(t, "jwt", cfg.Server.AuthMode)
	assert.Equal(t, 2, cfg.Notion.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Notion.Timeout)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"MCP_PORT":          "70000",
		"MCP_PATH":          "sse",
		"MCP_AUTH_MODE":     "oauth",
		"LOG_FORMAT":        "xml",
		"LOG_LEVEL":         "loud",
		"NOTION_RATE_LIMIT": "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_PORT", "eighty")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

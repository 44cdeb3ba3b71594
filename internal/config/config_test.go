package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(120_000), cfg.Runtimes.DefaultTimeoutMs)
	assert.Equal(t, 5, cfg.Runtimes.Subprocess.KillGraceSeconds)
	assert.Equal(t, 15, cfg.Approvals.TTLMinutes)
	assert.Equal(t, 2, cfg.Approvals.RetryAfterSecs)
	assert.Equal(t, "* * * * *", cfg.Approvals.SweepSchedule)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.Empty(t, cfg.Sources)
}

func TestConfigValidate(t *testing.T) {
	t.Run("default config is valid", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Port = 70000
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "port")
	})

	t.Run("bad executor url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Runtimes.Remote.ExecutorURL = "not a url"
		assert.Error(t, cfg.Validate())
	})

	t.Run("source without workspace", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Sources = []SourceConfig{
			{ID: "acme", Kind: "http", BaseURL: "https://api.acme.test"},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "workspace_id")
	})

	t.Run("duplicate source ids", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Sources = []SourceConfig{
			{ID: "acme", WorkspaceID: "ws_1", Kind: "http", BaseURL: "https://api.acme.test"},
			{ID: "acme", WorkspaceID: "ws_1", Kind: "graph", BaseURL: "https://graph.acme.test"},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	s := cfg.String()
	assert.True(t, strings.Contains(s, `"server"`))
	assert.True(t, strings.Contains(s, `"approvals"`))
}

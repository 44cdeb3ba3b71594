package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhysSullivan/assistant-sub002/internal/config"
	"github.com/RhysSullivan/assistant-sub002/internal/logger"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Store.Path = filepath.Join(tmpDir, "assistant.db")
	cfg.Logging.File = ""
	cfg.Server.Port = 8080 // never started in tests
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Console: false})
	require.NoError(t, err)
	return log
}

func TestNew(t *testing.T) {
	t.Run("wires the full pipeline", func(t *testing.T) {
		cfg := testConfig(t)

		d, err := New(cfg, testLogger(t))
		require.NoError(t, err)
		require.NotNil(t, d)
		defer d.store.Close()

		assert.NotNil(t, d.Registry())
		assert.NotNil(t, d.Store())
		assert.NotNil(t, d.approvals)
		assert.NotNil(t, d.runTable)

		status := d.Status()
		assert.False(t, status.Running)
		assert.Zero(t, status.Uptime)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Server.Port = -1

		_, err := New(cfg, testLogger(t))
		assert.Error(t, err)
	})

	t.Run("rejects bad rules file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Policy.RulesFile = filepath.Join(t.TempDir(), "missing.json")

		_, err := New(cfg, testLogger(t))
		assert.Error(t, err)
	})
}

func TestDaemonStop(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg, testLogger(t))
	require.NoError(t, err)

	// Stop before start is a no-op
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, d.Stop(ctx))

	d.store.Close()
}

func TestPersistDiscovery(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg, testLogger(t))
	require.NoError(t, err)
	defer d.store.Close()

	ctx := context.Background()
	source := tool.Source{ID: "src_mcp", WorkspaceID: "ws_1", Kind: tool.ProviderMCP}
	descriptor := func(toolID string) tool.CanonicalToolDescriptor {
		return tool.CanonicalToolDescriptor{
			ProviderKind:   tool.ProviderMCP,
			SourceID:       source.ID,
			WorkspaceID:    source.WorkspaceID,
			ToolID:         toolID,
			Name:           toolID,
			InvocationMode: tool.ModeRead,
			Availability:   tool.AvailabilityEnabled,
		}
	}
	manifest := &tool.ToolManifest{
		Version: tool.ManifestVersion,
		Tools:   []tool.CanonicalToolDescriptor{descriptor("calendar.list")},
	}

	reused, err := d.persistDiscovery(ctx, source, manifest)
	require.NoError(t, err)
	assert.False(t, reused)

	artifact, err := d.store.GetArtifact(ctx, source.WorkspaceID, source.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, artifact.ToolCount)
	assert.NotEmpty(t, artifact.SourceHash)

	// An unchanged manifest keeps the stored artifact.
	reused, err = d.persistDiscovery(ctx, source, manifest)
	require.NoError(t, err)
	assert.True(t, reused)

	// A changed manifest replaces it under the same artifact id.
	manifest.Tools = append(manifest.Tools, descriptor("calendar.create"))
	reused, err = d.persistDiscovery(ctx, source, manifest)
	require.NoError(t, err)
	assert.False(t, reused)

	updated, err := d.store.GetArtifact(ctx, source.WorkspaceID, source.ID)
	require.NoError(t, err)
	assert.Equal(t, artifact.ID, updated.ID)
	assert.Equal(t, 2, updated.ToolCount)
}

func TestLifecycleManager(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg, testLogger(t))
	require.NoError(t, err)
	defer d.store.Close()

	lm := NewLifecycleManager(d)
	require.NoError(t, lm.Start())

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
	assert.True(t, lm.IsRunning())

	require.NoError(t, lm.Stop())
	_, err = lm.GetPID()
	assert.Error(t, err)
}

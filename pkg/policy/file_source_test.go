package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `{
  "rules": [
    {"id": "r1", "scope_type": "workspace", "resource_pattern": "mail.*", "effect": "allow", "approval_mode": "auto"}
  ]
}`

const updatedRules = `{
  "rules": [
    {"id": "r1", "scope_type": "workspace", "resource_pattern": "mail.*", "effect": "allow", "approval_mode": "auto"},
    {"id": "r2", "scope_type": "workspace", "resource_pattern": "mail.send", "effect": "deny", "approval_mode": "auto"}
  ]
}`

// TestFileSource_Load tests initial load.
func TestFileSource_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0644))

	source, err := NewFileSource(path)
	require.NoError(t, err)

	rules, err := source.RulesFor(context.Background(), Caller{})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].ID)
}

// TestFileSource_Reload tests that a rewrite swaps the snapshot.
func TestFileSource_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0644))

	source, err := NewFileSource(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, source.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte(updatedRules), 0644))

	assert.Eventually(t, func() bool {
		rules, err := source.RulesFor(context.Background(), Caller{})
		return err == nil && len(rules) == 2
	}, 2*time.Second, 20*time.Millisecond)
}

// TestFileSource_BadFileKeepsSnapshot tests that a broken rewrite keeps
// the previous rules.
func TestFileSource_BadFileKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0644))

	source, err := NewFileSource(path)
	require.NoError(t, err)

	assert.Error(t, func() error {
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			return err
		}
		return source.reload()
	}())

	rules, err := source.RulesFor(context.Background(), Caller{})
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

// TestFileSource_MissingFile tests the error path.
func TestFileSource_MissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

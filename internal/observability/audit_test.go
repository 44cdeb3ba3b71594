package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, InitAuditLogger(path))
	defer GetAuditLogger().Close()

	RecordApprovalAudit("apr_1", "reviewer_1", "denied", map[string]interface{}{
		"tool_path": "payments.send",
		"reason":    "insufficient funds",
	})
	RecordInvocationAudit("calendar.list", "run_1", "success", nil)
	RecordRunAudit("run_1", "subprocess", "failure", nil)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "approval", first["type"])
	assert.Equal(t, "reviewer_1", first["actor"])
	assert.Equal(t, "resolve:apr_1", first["action"])
	assert.Equal(t, "denied", first["status"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "invoke:calendar.list", second["action"])

	var third map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &third))
	assert.Equal(t, "execute:subprocess", third["action"])
}

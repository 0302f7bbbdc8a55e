package governance

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/notebook"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

func testMiddleware(t *testing.T, cfg config.GovernanceConfig) *Middleware {
	t.Helper()
	root := t.TempDir()
	vault, err := notebook.New(config.NotebookConfig{VaultRoot: root, LogsFolder: "logs"})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return New(cfg, vault, "0.1.0", logger)
}

func validRecord() LogRecord {
	return LogRecord{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Type:      "tool_call",
		Source:    "cli-agent-1",
		Action:    "task_create",
	}
}

func TestMiddleware_Guard_Success(t *testing.T) {
	m := testMiddleware(t, config.GovernanceConfig{
		EnforceLogging: true, BlockOnFailure: true, RequireTimestamp: true,
		RequireSource: true, RequireAction: true, ISO8601Strict: true, ValidateSchema: true,
	})

	result, err := m.Guard(validRecord(), func() (any, error) {
		return map[string]any{"id": "task-1"}, nil
	})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestMiddleware_ValidateSchema(t *testing.T) {
	m := testMiddleware(t, config.GovernanceConfig{
		ValidateSchema: true, ISO8601Strict: true, RequireTimestamp: true,
		RequireSource: true, RequireAction: true,
	})

	t.Run("missing required field", func(t *testing.T) {
		r := validRecord()
		r.Action = ""
		err := m.validateSchema(r)
		require.Error(t, err)
		assert.True(t, taxonomy.Of(err, taxonomy.GovernanceInvalidFormat))
	})

	t.Run("non-strict timestamp rejected", func(t *testing.T) {
		r := validRecord()
		r.Timestamp = "2026-07-31 10:00:00"
		err := m.validateSchema(r)
		require.Error(t, err)
		assert.True(t, taxonomy.Of(err, taxonomy.GovernanceInvalidFormat))
	})

	t.Run("valid record passes", func(t *testing.T) {
		err := m.validateSchema(validRecord())
		assert.NoError(t, err)
	})
}

func TestMiddleware_Guard_BlocksOnUnwritableVault(t *testing.T) {
	root := t.TempDir()
	vault, err := notebook.New(config.NotebookConfig{VaultRoot: root, LogsFolder: "logs"})
	require.NoError(t, err)
	require.NoError(t, os.Chmod(root, 0o400))
	defer os.Chmod(root, 0o755)

	m := New(config.GovernanceConfig{BlockOnFailure: true, ValidateSchema: true}, vault, "0.1.0",
		slog.New(slog.NewTextHandler(os.Stderr, nil)))

	called := false
	_, err = m.Guard(validRecord(), func() (any, error) {
		called = true
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, taxonomy.Of(err, taxonomy.GovernanceBlocked))
	assert.False(t, called)
}

func TestSummarize(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := summarize(map[string]any{"id": "x"}, nil)
		assert.Equal(t, true, s["success"])
	})

	t.Run("failure carries taxonomy kind", func(t *testing.T) {
		s := summarize(nil, taxonomy.New(taxonomy.NotFound, "missing"))
		assert.Equal(t, false, s["success"])
		assert.Equal(t, "not_found", s["kind"])
	})
}

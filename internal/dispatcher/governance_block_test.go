package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/discovery"
	"github.com/emergent-company/memoryhub/internal/governance"
	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/notebook"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

type countingTool struct{ calls *int }

func (t countingTool) Name() string                 { return "mutate" }
func (t countingTool) Description() string          { return "mutates state" }
func (t countingTool) InputSchema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t countingTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	*t.calls++
	return mcp.JSONResult(map[string]bool{"ok": true})
}

type countingServer struct {
	registry *mcp.Registry
}

func (f *countingServer) Name() string                          { return "graph-memory" }
func (f *countingServer) ToolNames() []string                   { return []string{"mutate"} }
func (f *countingServer) HealthProbe(ctx context.Context) error { return nil }
func (f *countingServer) Registry() *mcp.Registry               { return f.registry }

// An unwritable vault root with block_on_failure on must short-circuit the
// call with GovernanceBlocked before the tool handler runs.
func TestToolsCall_GovernanceBlocked(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not bind as root")
	}

	root := filepath.Join(t.TempDir(), "vault")
	require.NoError(t, os.MkdirAll(root, 0o755))
	vault, err := notebook.New(config.NotebookConfig{VaultRoot: root, LogsFolder: "logs"})
	require.NoError(t, err)
	require.NoError(t, os.Chmod(root, 0o500))
	t.Cleanup(func() { os.Chmod(root, 0o755) })

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	gov := governance.New(config.GovernanceConfig{
		EnforceLogging: true, BlockOnFailure: true, ValidateSchema: true,
		RequireTimestamp: true, RequireSource: true, RequireAction: true, ISO8601Strict: true,
	}, vault, "0.1.0", logger)

	d := New(discovery.New(logger), gov, nil, logger)

	calls := 0
	reg := mcp.NewRegistry()
	reg.Register(countingTool{calls: &calls})
	d.Register(&countingServer{registry: reg}, nil)

	result, err := d.ToolsCall(context.Background(), "", "mutate", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, taxonomy.GovernanceBlocked, taxonomy.KindOf(err))
	assert.True(t, result.IsError)
	assert.Zero(t, calls, "blocked action must not execute")
}

// Under enforce=true a successful call writes exactly one pre-record and
// one post-record to today's log file.
func TestToolsCall_WritesPreAndPostRecords(t *testing.T) {
	root := t.TempDir()
	vault, err := notebook.New(config.NotebookConfig{VaultRoot: root, LogsFolder: "logs"})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	gov := governance.New(config.GovernanceConfig{
		EnforceLogging: true, BlockOnFailure: true, ValidateSchema: true,
		RequireTimestamp: true, RequireSource: true, RequireAction: true, ISO8601Strict: true,
	}, vault, "0.1.0", logger)

	d := New(discovery.New(logger), gov, nil, logger)

	calls := 0
	reg := mcp.NewRegistry()
	reg.Register(countingTool{calls: &calls})
	d.Register(&countingServer{registry: reg}, nil)

	_, err = d.ToolsCall(context.Background(), "", "mutate", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(root, entries[0].Name()))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, ":: mutate\n")
	assert.Contains(t, content, ":: mutate_result\n")
}

package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/discovery"
	"github.com/emergent-company/memoryhub/internal/governance"
	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/notebook"
)

type echoTool struct{}

func (echoTool) Name() string                 { return "echo" }
func (echoTool) Description() string          { return "echoes its arguments" }
func (echoTool) InputSchema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return mcp.JSONResult(map[string]string{"echo": string(params)})
}

type fakeServer struct {
	name     string
	registry *mcp.Registry
}

func newFakeServer(name string) *fakeServer {
	r := mcp.NewRegistry()
	r.Register(echoTool{})
	return &fakeServer{name: name, registry: r}
}

func (f *fakeServer) Name() string                          { return f.name }
func (f *fakeServer) ToolNames() []string                   { return []string{"echo"} }
func (f *fakeServer) HealthProbe(ctx context.Context) error { return nil }
func (f *fakeServer) Registry() *mcp.Registry               { return f.registry }

func testDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	root := t.TempDir()
	vault, err := notebook.New(config.NotebookConfig{VaultRoot: root, LogsFolder: "logs"})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	gov := governance.New(config.GovernanceConfig{ValidateSchema: true, ISO8601Strict: true}, vault, "0.1.0", logger)
	return New(discovery.New(logger), gov, nil, logger)
}

func TestDispatcher_ToolsListAndCall(t *testing.T) {
	d := testDispatcher(t)
	d.Register(newFakeServer("graph-memory"), []string{"graph"})

	defs := d.ToolsList()
	require.Len(t, defs, 1)
	assert.Equal(t, "echo", defs[0].Name)

	result, err := d.ToolsCall(context.Background(), "", "echo", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestDispatcher_ToolsCall_UnknownTool(t *testing.T) {
	d := testDispatcher(t)
	d.Register(newFakeServer("graph-memory"), nil)

	result, err := d.ToolsCall(context.Background(), "", "nonexistent", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDispatcher_ToolsCall_ExplicitServer(t *testing.T) {
	d := testDispatcher(t)
	d.Register(newFakeServer("graph-memory"), nil)

	result, err := d.ToolsCall(context.Background(), "graph-memory", "echo", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

package modelserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/modelrouter"
)

func testServer() *Server {
	cfg := config.ModelConfig{
		Host: "localhost", Port: "1", TimeoutMs: 200, Retries: 0,
		InventoryTTLSec: 60, Fallback: "llama-fallback",
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return New(modelrouter.New(cfg, logger), logger)
}

func TestToolSchemasAreRegistered(t *testing.T) {
	s := testServer()
	defs := s.Registry().List()
	require.Len(t, defs, 10)

	names := s.ToolNames()
	for _, want := range []string{"chat", "complete", "embed", "vision", "list_models", "get_model_info", "pull_model", "set_default_model", "reasoning", "coding"} {
		assert.Contains(t, names, want)
	}
	for _, d := range defs {
		assert.NotEmpty(t, d.InputSchema, d.Name)
	}
}

func TestChat_EmptyMessagesRejected(t *testing.T) {
	s := testServer()
	tool := s.Registry().Get("chat")
	require.NotNil(t, tool)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"messages":[]}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "messages must not be empty")
}

func TestSetDefaultModelTool(t *testing.T) {
	s := testServer()
	tool := s.Registry().Get("set_default_model")
	require.NotNil(t, tool)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"taskClass":"coding","model":"deepseek-coder"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "deepseek-coder", s.router.ModelFor("coding"))
}

func TestRouteEnvelope(t *testing.T) {
	res := &modelrouter.RouteResult{
		Model:      "llama-fallback",
		Downgraded: true,
		DurationMs: 12,
		Response: map[string]any{
			"response":          "Paris",
			"prompt_eval_count": float64(10),
			"eval_count":        float64(5),
		},
	}
	out := routeEnvelope(res)
	assert.Equal(t, "llama-fallback", out["model"])
	assert.Equal(t, true, out["model_downgraded"])
	assert.Equal(t, "Paris", out["response"])
	assert.Equal(t, float64(10), out["prompt_eval_count"])
	assert.Equal(t, float64(5), out["eval_count"])
}

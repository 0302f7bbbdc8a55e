// Package modelserver exposes the model-routing MCP tool surface over
// internal/modelrouter: chat, complete, embed, vision, inventory
// management, and the reasoning/coding task-class shortcuts.
package modelserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/modelrouter"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

const Name = "model-router"

// Server is the model sub-server.
type Server struct {
	router   *modelrouter.Router
	registry *mcp.Registry
	logger   *slog.Logger
}

// New builds the model sub-server and registers its tools.
func New(router *modelrouter.Router, logger *slog.Logger) *Server {
	s := &Server{router: router, registry: mcp.NewRegistry(), logger: logger}
	for _, t := range []mcp.Tool{
		&chatTool{s}, &completeTool{s}, &embedTool{s}, &visionTool{s},
		&listModelsTool{s}, &getModelInfoTool{s}, &pullModelTool{s},
		&setDefaultModelTool{s}, &reasoningTool{s}, &codingTool{s},
	} {
		s.registry.Register(t)
	}
	return s
}

func (s *Server) Name() string            { return Name }
func (s *Server) Registry() *mcp.Registry { return s.registry }

func (s *Server) ToolNames() []string {
	defs := s.registry.List()
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

func (s *Server) HealthProbe(ctx context.Context) error {
	if !s.router.Health(ctx) {
		return taxonomy.New(taxonomy.BackendUnavailable, "model runtime unreachable")
	}
	return nil
}

func schema(required []string, props string) json.RawMessage {
	req, _ := json.Marshal(required)
	return json.RawMessage(fmt.Sprintf(`{"type":"object","properties":{%s},"required":%s}`, props, req))
}

func decode[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 {
		return v, taxonomy.New(taxonomy.InvalidInput, "arguments are required")
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, taxonomy.Wrap(taxonomy.InvalidInput, "invalid arguments", err)
	}
	return v, nil
}

func errEnvelope(tool string, err error) (*mcp.ToolsCallResult, error) {
	payload, _ := json.Marshal(map[string]any{"error": err.Error(), "tool": tool, "kind": string(taxonomy.KindOf(err))})
	return &mcp.ToolsCallResult{Content: []mcp.ContentBlock{mcp.TextContent(string(payload))}, IsError: true}, nil
}

// routeEnvelope renders a RouteResult into the flat shape tool callers see,
// lifting the runtime's token counters when present.
func routeEnvelope(res *modelrouter.RouteResult) map[string]any {
	out := map[string]any{
		"model":       res.Model,
		"duration_ms": res.DurationMs,
		"response":    res.Response["response"],
	}
	if res.Downgraded {
		out["model_downgraded"] = true
	}
	if v, ok := res.Response["prompt_eval_count"]; ok {
		out["prompt_eval_count"] = v
	}
	if v, ok := res.Response["eval_count"]; ok {
		out["eval_count"] = v
	}
	return out
}

// --- chat ---

type chatTool struct{ s *Server }

func (t *chatTool) Name() string        { return "chat" }
func (t *chatTool) Description() string { return "Send a chat conversation to a local model." }
func (t *chatTool) InputSchema() json.RawMessage {
	return schema([]string{"messages"}, `"messages":{"type":"array","items":{"type":"object"}},"model":{"type":"string"}`)
}

func (t *chatTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Messages []map[string]string `json:"messages"`
		Model    string              `json:"model"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	if len(args.Messages) == 0 {
		return errEnvelope(t.Name(), taxonomy.New(taxonomy.InvalidInput, "messages must not be empty"))
	}
	resp, err := t.s.router.Chat(ctx, args.Model, "chat", args.Messages, false)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(resp)
}

// --- complete ---

type completeTool struct{ s *Server }

func (t *completeTool) Name() string        { return "complete" }
func (t *completeTool) Description() string { return "Run a raw prompt completion." }
func (t *completeTool) InputSchema() json.RawMessage {
	return schema([]string{"prompt"}, `"prompt":{"type":"string"},"model":{"type":"string"},"taskClass":{"type":"string"}`)
}

func (t *completeTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Prompt    string `json:"prompt"`
		Model     string `json:"model"`
		TaskClass string `json:"taskClass"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	class := args.TaskClass
	if class == "" {
		class = "general"
	}
	res, err := t.s.router.Route(ctx, class, args.Model, args.Prompt)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(routeEnvelope(res))
}

// --- embed ---

type embedTool struct{ s *Server }

func (t *embedTool) Name() string        { return "embed" }
func (t *embedTool) Description() string { return "Compute an embedding vector for text." }
func (t *embedTool) InputSchema() json.RawMessage {
	return schema([]string{"text"}, `"text":{"type":"string"},"model":{"type":"string"}`)
}

func (t *embedTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Text  string `json:"text"`
		Model string `json:"model"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	resp, err := t.s.router.Embed(ctx, args.Model, args.Text)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(resp)
}

// --- vision ---

type visionTool struct{ s *Server }

func (t *visionTool) Name() string { return "vision" }
func (t *visionTool) Description() string {
	return "Ask a vision model about one or more base64 images."
}
func (t *visionTool) InputSchema() json.RawMessage {
	return schema([]string{"prompt", "images"}, `"prompt":{"type":"string"},"images":{"type":"array","items":{"type":"string"}},"model":{"type":"string"}`)
}

func (t *visionTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Prompt string   `json:"prompt"`
		Images []string `json:"images"`
		Model  string   `json:"model"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	if len(args.Images) == 0 {
		return errEnvelope(t.Name(), taxonomy.New(taxonomy.InvalidInput, "images must not be empty"))
	}
	resp, err := t.s.router.Vision(ctx, args.Model, args.Prompt, args.Images)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(resp)
}

// --- list_models ---

type listModelsTool struct{ s *Server }

func (t *listModelsTool) Name() string        { return "list_models" }
func (t *listModelsTool) Description() string { return "List models installed on the runtime." }
func (t *listModelsTool) InputSchema() json.RawMessage {
	return schema(nil, `"forceRefresh":{"type":"boolean"}`)
}

func (t *listModelsTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var args struct {
		ForceRefresh bool `json:"forceRefresh"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return errEnvelope(t.Name(), taxonomy.Wrap(taxonomy.InvalidInput, "invalid arguments", err))
		}
	}
	var (
		models []modelrouter.ModelInfo
		err    error
	)
	if args.ForceRefresh {
		models, err = t.s.router.RefreshInventory(ctx)
	} else {
		models, err = t.s.router.ListModels(ctx)
	}
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"models": models})
}

// --- get_model_info ---

type getModelInfoTool struct{ s *Server }

func (t *getModelInfoTool) Name() string        { return "get_model_info" }
func (t *getModelInfoTool) Description() string { return "Fetch detail for a single installed model." }
func (t *getModelInfoTool) InputSchema() json.RawMessage {
	return schema([]string{"model"}, `"model":{"type":"string"}`)
}

func (t *getModelInfoTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Model string `json:"model"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	info, err := t.s.router.GetModelInfo(ctx, args.Model)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(info)
}

// --- pull_model ---

type pullModelTool struct{ s *Server }

func (t *pullModelTool) Name() string { return "pull_model" }
func (t *pullModelTool) Description() string {
	return "Pull a model onto the runtime. Idempotent; refreshes the inventory."
}
func (t *pullModelTool) InputSchema() json.RawMessage {
	return schema([]string{"model"}, `"model":{"type":"string"}`)
}

func (t *pullModelTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Model string `json:"model"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	resp, err := t.s.router.PullModel(ctx, args.Model)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"success": true, "model": args.Model, "status": resp["status"]})
}

// --- set_default_model ---

type setDefaultModelTool struct{ s *Server }

func (t *setDefaultModelTool) Name() string { return "set_default_model" }
func (t *setDefaultModelTool) Description() string {
	return "Override the default model for a task class for this process."
}
func (t *setDefaultModelTool) InputSchema() json.RawMessage {
	return schema([]string{"taskClass", "model"}, `"taskClass":{"type":"string"},"model":{"type":"string"}`)
}

func (t *setDefaultModelTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		TaskClass string `json:"taskClass"`
		Model     string `json:"model"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	t.s.router.SetDefault(args.TaskClass, args.Model)
	return mcp.JSONResult(map[string]any{"success": true, "taskClass": args.TaskClass, "model": args.Model})
}

// --- reasoning ---

type reasoningTool struct{ s *Server }

func (t *reasoningTool) Name() string        { return "reasoning" }
func (t *reasoningTool) Description() string { return "Run a prompt on the reasoning-class model." }
func (t *reasoningTool) InputSchema() json.RawMessage {
	return schema([]string{"prompt"}, `"prompt":{"type":"string"},"model":{"type":"string"}`)
}

func (t *reasoningTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Prompt string `json:"prompt"`
		Model  string `json:"model"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	res, err := t.s.router.Route(ctx, "reasoning", args.Model, args.Prompt)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(routeEnvelope(res))
}

// --- coding ---

type codingTool struct{ s *Server }

func (t *codingTool) Name() string { return "coding" }
func (t *codingTool) Description() string {
	return "Run a prompt on the coding-class model, with an optional language hint."
}
func (t *codingTool) InputSchema() json.RawMessage {
	return schema([]string{"prompt"}, `"prompt":{"type":"string"},"language":{"type":"string"},"model":{"type":"string"}`)
}

func (t *codingTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Prompt   string `json:"prompt"`
		Language string `json:"language"`
		Model    string `json:"model"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	prompt := args.Prompt
	if args.Language != "" {
		prompt = fmt.Sprintf("Language: %s\n\n%s", args.Language, prompt)
	}
	res, err := t.s.router.Route(ctx, "coding", args.Model, prompt)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(routeEnvelope(res))
}

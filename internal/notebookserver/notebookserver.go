// Package notebookserver exposes the notebook vault as an
// MCP tool surface: write, append, read, list and search markdown notes,
// plus a resource for today's governance log.
package notebookserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/notebook"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

const Name = "notebook"

// Server is the notebook sub-server.
type Server struct {
	vault    *notebook.Vault
	registry *mcp.Registry
	logger   *slog.Logger
}

// New builds the notebook sub-server and registers its tools and resources.
func New(vault *notebook.Vault, logger *slog.Logger) *Server {
	s := &Server{vault: vault, registry: mcp.NewRegistry(), logger: logger}
	for _, t := range []mcp.Tool{
		&writeNoteTool{s}, &appendNoteTool{s}, &readNoteTool{s},
		&listNotesTool{s}, &searchNotesTool{s},
	} {
		s.registry.Register(t)
	}
	s.registry.RegisterResource(&todayLogResource{s})
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
	if err := s.vault.EnsureWritable(); err != nil {
		return taxonomy.Wrap(taxonomy.BackendUnavailable, "notebook vault unwritable", err)
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

// --- write_note ---

type writeNoteTool struct{ s *Server }

func (t *writeNoteTool) Name() string { return "write_note" }
func (t *writeNoteTool) Description() string {
	return "Replace a note's contents, with optional frontmatter."
}
func (t *writeNoteTool) InputSchema() json.RawMessage {
	return schema([]string{"name", "body"}, `"name":{"type":"string"},"body":{"type":"string"},"frontmatter":{"type":"object"}`)
}

func (t *writeNoteTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Name        string         `json:"name"`
		Body        string         `json:"body"`
		Frontmatter map[string]any `json:"frontmatter"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	if err := t.s.vault.Write(args.Name, args.Body, args.Frontmatter); err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"success": true, "name": args.Name})
}

// --- append_note ---

type appendNoteTool struct{ s *Server }

func (t *appendNoteTool) Name() string { return "append_note" }
func (t *appendNoteTool) Description() string {
	return "Append a block to a note, creating it if absent."
}
func (t *appendNoteTool) InputSchema() json.RawMessage {
	return schema([]string{"name", "body"}, `"name":{"type":"string"},"body":{"type":"string"}`)
}

func (t *appendNoteTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Name string `json:"name"`
		Body string `json:"body"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	if err := t.s.vault.Append(args.Name, args.Body); err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"success": true, "name": args.Name})
}

// --- read_note ---

type readNoteTool struct{ s *Server }

func (t *readNoteTool) Name() string { return "read_note" }
func (t *readNoteTool) Description() string {
	return "Read a note, returning its frontmatter and body."
}
func (t *readNoteTool) InputSchema() json.RawMessage {
	return schema([]string{"name"}, `"name":{"type":"string"}`)
}

func (t *readNoteTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Name string `json:"name"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	frontmatter, body, err := t.s.vault.Read(args.Name)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"name": args.Name, "frontmatter": frontmatter, "body": body})
}

// --- list_notes ---

type listNotesTool struct{ s *Server }

func (t *listNotesTool) Name() string { return "list_notes" }
func (t *listNotesTool) Description() string {
	return "List notes in the vault, newest or oldest first."
}
func (t *listNotesTool) InputSchema() json.RawMessage {
	return schema(nil, `"limit":{"type":"integer"},"order":{"type":"string","enum":["newest","oldest"]}`)
}

func (t *listNotesTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var args struct {
		Limit int    `json:"limit"`
		Order string `json:"order"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return errEnvelope(t.Name(), taxonomy.Wrap(taxonomy.InvalidInput, "invalid arguments", err))
		}
	}
	if args.Order == "" {
		args.Order = "newest"
	}
	entries, err := t.s.vault.List(args.Limit, args.Order)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"notes": entries})
}

// --- search_notes ---

type searchNotesTool struct{ s *Server }

func (t *searchNotesTool) Name() string { return "search_notes" }
func (t *searchNotesTool) Description() string {
	return "Search notes by filename, optionally scanning contents."
}
func (t *searchNotesTool) InputSchema() json.RawMessage {
	return schema([]string{"query"}, `"query":{"type":"string"},"searchBody":{"type":"boolean"}`)
}

func (t *searchNotesTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Query      string `json:"query"`
		SearchBody bool   `json:"searchBody"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	entries, err := t.s.vault.Search(args.Query, args.SearchBody)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"notes": entries})
}

// --- notebook://log/today resource ---

// todayLogResource exposes the current day's governance log file. The URI is
// stable; the content rolls over at midnight UTC with the log file itself.
type todayLogResource struct{ s *Server }

func (r *todayLogResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "notebook://log/today",
		Name:        "Today's action log",
		Description: "The per-day governance log of every tool invocation recorded today",
		MimeType:    "text/markdown",
	}
}

func (r *todayLogResource) Read() (*mcp.ResourcesReadResult, error) {
	name := r.s.vault.LogFileName(time.Now().UTC())
	_, body, err := r.s.vault.Read(name)
	if err != nil {
		if taxonomy.Of(err, taxonomy.NotFound) {
			body = ""
		} else {
			return nil, err
		}
	}
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{URI: "notebook://log/today", MimeType: "text/markdown", Text: body},
		},
	}, nil
}

// Package graphserver exposes a thin MCP tool surface over
// internal/graphstore: create_entity, create_entities, get_entity,
// find_entities, search_entities, update_entity, delete_entity,
// count_entities, create_relationship, get_relationships, query_graph,
// find_shortest_path and find_all_paths.
package graphserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/emergent-company/memoryhub/internal/graphstore"
	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

const Name = "graph-memory"

// Server is the graph-memory sub-server.
type Server struct {
	pool     *graphstore.Pool
	registry *mcp.Registry
	logger   *slog.Logger
}

// New builds the graph-memory sub-server and registers its tools.
func New(pool *graphstore.Pool, logger *slog.Logger) *Server {
	s := &Server{pool: pool, registry: mcp.NewRegistry(), logger: logger}
	for _, t := range []mcp.Tool{
		&createEntityTool{s}, &createEntitiesTool{s}, &getEntityTool{s},
		&findEntitiesTool{s}, &searchEntitiesTool{s}, &updateEntityTool{s},
		&deleteEntityTool{s}, &countEntitiesTool{s},
		&createRelationshipTool{s}, &getRelationshipsTool{s},
		&queryGraphTool{s}, &findShortestPathTool{s}, &findAllPathsTool{s},
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

// HealthProbe runs a cheap read against the graph backend.
func (s *Server) HealthProbe(ctx context.Context) error {
	status := s.pool.Health(ctx)
	if !status.Healthy {
		return taxonomy.New(taxonomy.BackendUnavailable, status.Reason)
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

// --- create_entity ---

type createEntityTool struct{ s *Server }

func (t *createEntityTool) Name() string { return "create_entity" }
func (t *createEntityTool) Description() string {
	return "Create a graph entity scoped by label and id."
}
func (t *createEntityTool) InputSchema() json.RawMessage {
	return schema([]string{"label", "id"}, `"label":{"type":"string"},"id":{"type":"string"},"properties":{"type":"object"}`)
}

func (t *createEntityTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Label      string         `json:"label"`
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	ent, err := t.s.pool.CreateEntity(ctx, args.Label, args.ID, args.Properties)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"success": true, "entity": ent})
}

// --- get_entity ---

type getEntityTool struct{ s *Server }

func (t *getEntityTool) Name() string        { return "get_entity" }
func (t *getEntityTool) Description() string { return "Fetch a single entity by label and id." }
func (t *getEntityTool) InputSchema() json.RawMessage {
	return schema([]string{"label", "id"}, `"label":{"type":"string"},"id":{"type":"string"}`)
}

func (t *getEntityTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Label string `json:"label"`
		ID    string `json:"id"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	ent, err := t.s.pool.GetEntity(ctx, args.Label, args.ID)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(ent)
}

// --- find_entities ---

type findEntitiesTool struct{ s *Server }

func (t *findEntitiesTool) Name() string { return "find_entities" }
func (t *findEntitiesTool) Description() string {
	return "Find entities by equality match on properties."
}
func (t *findEntitiesTool) InputSchema() json.RawMessage {
	return schema([]string{"label"}, `"label":{"type":"string"},"match":{"type":"object"},"limit":{"type":"integer"}`)
}

func (t *findEntitiesTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Label string         `json:"label"`
		Match map[string]any `json:"match"`
		Limit int            `json:"limit"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	ents, err := t.s.pool.FindEntities(ctx, args.Label, args.Match, args.Limit)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"entities": ents})
}

// --- update_entity ---

type updateEntityTool struct{ s *Server }

func (t *updateEntityTool) Name() string        { return "update_entity" }
func (t *updateEntityTool) Description() string { return "Merge properties into an existing entity." }
func (t *updateEntityTool) InputSchema() json.RawMessage {
	return schema([]string{"label", "id", "properties"}, `"label":{"type":"string"},"id":{"type":"string"},"properties":{"type":"object"}`)
}

func (t *updateEntityTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Label      string         `json:"label"`
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	ent, err := t.s.pool.UpdateEntity(ctx, args.Label, args.ID, args.Properties)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"success": true, "entity": ent})
}

// --- delete_entity ---

type deleteEntityTool struct{ s *Server }

func (t *deleteEntityTool) Name() string { return "delete_entity" }
func (t *deleteEntityTool) Description() string {
	return "Delete an entity and detach its relationships."
}
func (t *deleteEntityTool) InputSchema() json.RawMessage {
	return schema([]string{"label", "id"}, `"label":{"type":"string"},"id":{"type":"string"}`)
}

func (t *deleteEntityTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Label string `json:"label"`
		ID    string `json:"id"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	deleted, err := t.s.pool.DeleteEntity(ctx, args.Label, args.ID)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"deleted": deleted})
}

// --- count_entities ---

type countEntitiesTool struct{ s *Server }

func (t *countEntitiesTool) Name() string        { return "count_entities" }
func (t *countEntitiesTool) Description() string { return "Count entities with the given label." }
func (t *countEntitiesTool) InputSchema() json.RawMessage {
	return schema([]string{"label"}, `"label":{"type":"string"}`)
}

func (t *countEntitiesTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Label string `json:"label"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	count, err := t.s.pool.CountEntities(ctx, args.Label)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"count": count})
}

// --- create_relationship ---

type createRelationshipTool struct{ s *Server }

func (t *createRelationshipTool) Name() string { return "create_relationship" }
func (t *createRelationshipTool) Description() string {
	return "Create a directed, typed relationship between two existing entities."
}
func (t *createRelationshipTool) InputSchema() json.RawMessage {
	return schema([]string{"type", "fromLabel", "fromId", "toLabel", "toId"},
		`"type":{"type":"string"},"fromLabel":{"type":"string"},"fromId":{"type":"string"},"toLabel":{"type":"string"},"toId":{"type":"string"},"properties":{"type":"object"}`)
}

func (t *createRelationshipTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Type       string         `json:"type"`
		FromLabel  string         `json:"fromLabel"`
		FromID     string         `json:"fromId"`
		ToLabel    string         `json:"toLabel"`
		ToID       string         `json:"toId"`
		Properties map[string]any `json:"properties"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	rel, err := t.s.pool.CreateRelationship(ctx, args.Type, args.FromLabel, args.FromID, args.ToLabel, args.ToID, args.Properties)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"success": true, "relationship": rel})
}

// --- get_relationships ---

type getRelationshipsTool struct{ s *Server }

func (t *getRelationshipsTool) Name() string { return "get_relationships" }
func (t *getRelationshipsTool) Description() string {
	return "List relationships touching an entity, optionally filtered by type and direction."
}
func (t *getRelationshipsTool) InputSchema() json.RawMessage {
	return schema([]string{"label", "id"},
		`"label":{"type":"string"},"id":{"type":"string"},"type":{"type":"string"},"direction":{"type":"string","enum":["in","out","both"]},"limit":{"type":"integer"}`)
}

func (t *getRelationshipsTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Label     string `json:"label"`
		ID        string `json:"id"`
		Type      string `json:"type"`
		Direction string `json:"direction"`
		Limit     int    `json:"limit"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	rels, err := t.s.pool.GetRelationshipsFor(ctx, args.Label, args.ID, args.Type, args.Direction, args.Limit)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"relationships": rels})
}

// --- query_graph (mode in {connected, path, stats}) ---

type queryGraphTool struct{ s *Server }

func (t *queryGraphTool) Name() string { return "query_graph" }
func (t *queryGraphTool) Description() string {
	return "Traverse the graph in one of three modes: connected, path (subgraph), or stats."
}
func (t *queryGraphTool) InputSchema() json.RawMessage {
	return schema([]string{"mode", "label", "id"},
		`"mode":{"type":"string","enum":["connected","path","stats"]},"label":{"type":"string"},"id":{"type":"string"},"relationshipType":{"type":"string"},"maxDepth":{"type":"integer"},"limit":{"type":"integer"}`)
}

func (t *queryGraphTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Mode             string `json:"mode"`
		Label            string `json:"label"`
		ID               string `json:"id"`
		RelationshipType string `json:"relationshipType"`
		MaxDepth         int    `json:"maxDepth"`
		Limit            int    `json:"limit"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	switch args.Mode {
	case "connected":
		ents, err := t.s.pool.ConnectedEntities(ctx, args.Label, args.ID, args.RelationshipType, args.MaxDepth, args.Limit)
		if err != nil {
			return errEnvelope(t.Name(), err)
		}
		return mcp.JSONResult(map[string]any{"entities": ents})
	case "path":
		ents, rels, err := t.s.pool.Subgraph(ctx, args.Label, args.ID, args.MaxDepth, args.Limit)
		if err != nil {
			return errEnvelope(t.Name(), err)
		}
		return mcp.JSONResult(map[string]any{"entities": ents, "relationships": rels})
	case "stats":
		stats, err := t.s.pool.RelationshipStats(ctx, args.Label, args.ID)
		if err != nil {
			return errEnvelope(t.Name(), err)
		}
		return mcp.JSONResult(map[string]any{"stats": stats})
	default:
		return errEnvelope(t.Name(), taxonomy.New(taxonomy.InvalidInput, "mode must be one of connected, path, stats"))
	}
}

// --- find_shortest_path ---

type findShortestPathTool struct{ s *Server }

func (t *findShortestPathTool) Name() string { return "find_shortest_path" }
func (t *findShortestPathTool) Description() string {
	return "Find the shortest path between two entities, bounded by maxDepth."
}
func (t *findShortestPathTool) InputSchema() json.RawMessage {
	return schema([]string{"fromLabel", "fromId", "toLabel", "toId"},
		`"fromLabel":{"type":"string"},"fromId":{"type":"string"},"toLabel":{"type":"string"},"toId":{"type":"string"},"relationshipType":{"type":"string"},"maxDepth":{"type":"integer"}`)
}

func (t *findShortestPathTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		FromLabel        string `json:"fromLabel"`
		FromID           string `json:"fromId"`
		ToLabel          string `json:"toLabel"`
		ToID             string `json:"toId"`
		RelationshipType string `json:"relationshipType"`
		MaxDepth         int    `json:"maxDepth"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	path, err := t.s.pool.ShortestPath(ctx, args.FromLabel, args.FromID, args.ToLabel, args.ToID, args.RelationshipType, args.MaxDepth)
	if err != nil {
		if taxonomy.Of(err, taxonomy.NotFound) {
			return mcp.JSONResult(map[string]any{"found": false})
		}
		return errEnvelope(t.Name(), err)
	}

	relTypes := make([]string, len(path.Rels))
	for i, r := range path.Rels {
		relTypes[i] = r.Type
	}
	return mcp.JSONResult(map[string]any{
		"found": true,
		"path": map[string]any{
			"length":        len(path.Rels),
			"nodes":         path.Nodes,
			"relationships": relTypes,
		},
	})
}

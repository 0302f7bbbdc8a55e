package graphserver

import (
	"context"
	"encoding/json"

	"github.com/emergent-company/memoryhub/internal/mcp"
)

// --- create_entities (batch) ---

type createEntitiesTool struct{ s *Server }

func (t *createEntitiesTool) Name() string { return "create_entities" }
func (t *createEntitiesTool) Description() string {
	return "Create a batch of entities atomically; partial failure rolls back all."
}
func (t *createEntitiesTool) InputSchema() json.RawMessage {
	return schema([]string{"label", "entities"},
		`"label":{"type":"string"},"entities":{"type":"array","items":{"type":"object"}}`)
}

func (t *createEntitiesTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Label    string           `json:"label"`
		Entities []map[string]any `json:"entities"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	ents, err := t.s.pool.CreateEntityBatch(ctx, args.Label, args.Entities)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"success": true, "created": len(ents), "entities": ents})
}

// --- search_entities ---

type searchEntitiesTool struct{ s *Server }

func (t *searchEntitiesTool) Name() string { return "search_entities" }
func (t *searchEntitiesTool) Description() string {
	return "Case-insensitive substring search over the listed property fields, OR'd across fields."
}
func (t *searchEntitiesTool) InputSchema() json.RawMessage {
	return schema([]string{"label", "query", "fields"},
		`"label":{"type":"string"},"query":{"type":"string"},"fields":{"type":"array","items":{"type":"string"}},"limit":{"type":"integer"}`)
}

func (t *searchEntitiesTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Label  string   `json:"label"`
		Query  string   `json:"query"`
		Fields []string `json:"fields"`
		Limit  int      `json:"limit"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	ents, err := t.s.pool.SearchByText(ctx, args.Label, args.Query, args.Fields, args.Limit)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"entities": ents})
}

// --- find_all_paths ---

type findAllPathsTool struct{ s *Server }

func (t *findAllPathsTool) Name() string { return "find_all_paths" }
func (t *findAllPathsTool) Description() string {
	return "List paths between two entities ordered by length ascending, bounded by maxDepth."
}
func (t *findAllPathsTool) InputSchema() json.RawMessage {
	return schema([]string{"fromLabel", "fromId", "toLabel", "toId"},
		`"fromLabel":{"type":"string"},"fromId":{"type":"string"},"toLabel":{"type":"string"},"toId":{"type":"string"},"relationshipType":{"type":"string"},"maxDepth":{"type":"integer"},"limit":{"type":"integer"}`)
}

func (t *findAllPathsTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		FromLabel        string `json:"fromLabel"`
		FromID           string `json:"fromId"`
		ToLabel          string `json:"toLabel"`
		ToID             string `json:"toId"`
		RelationshipType string `json:"relationshipType"`
		MaxDepth         int    `json:"maxDepth"`
		Limit            int    `json:"limit"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	paths, err := t.s.pool.AllPaths(ctx, args.FromLabel, args.FromID, args.ToLabel, args.ToID, args.RelationshipType, args.MaxDepth, args.Limit)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"count": len(paths), "paths": paths})
}

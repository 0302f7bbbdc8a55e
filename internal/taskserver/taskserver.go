// Package taskserver implements the task sub-server:
// hierarchical tasks with typed dependency edges and status transitions
// persisted directly in the graph store (no in-memory cache — unlike
// chainserver, the task model has no serialization ordering to protect).
package taskserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emergent-company/memoryhub/internal/graphstore"
	"github.com/emergent-company/memoryhub/internal/guards"
	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

const Name = "task-manager"
const labelTask = "Task"

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusBlocked    = "blocked"
	StatusDeferred   = "deferred"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

var dependencyTypes = map[string]bool{
	"MUST_COMPLETE_BEFORE":   true,
	"SHOULD_COMPLETE_BEFORE": true,
	"BLOCKS":                 true,
}

// Task is the hub's work-item model.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	DueDate     string     `json:"dueDate,omitempty"`
	Progress    int        `json:"progress"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Server is the task sub-server.
type Server struct {
	pool     *graphstore.Pool
	registry *mcp.Registry
	guards   *guards.Runner
	logger   *slog.Logger
}

// New builds the task sub-server and registers its tools.
func New(pool *graphstore.Pool, logger *slog.Logger) *Server {
	s := &Server{pool: pool, registry: mcp.NewRegistry(), guards: guards.NewRunner(), logger: logger}
	for _, t := range []mcp.Tool{
		&createTaskTool{s}, &getTaskTool{s}, &updateTaskTool{s}, &completeTaskTool{s},
		&deleteTaskTool{s}, &listTasksTool{s}, &addSubtaskTool{s},
		&setDependencyTool{s}, &getDependenciesTool{s},
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
	status := s.pool.Health(ctx)
	if !status.Healthy {
		return taxonomy.New(taxonomy.BackendUnavailable, status.Reason)
	}
	return nil
}

func taskFromProps(id string, props map[string]any) *Task {
	t := &Task{ID: id, Status: StatusPending}
	if v, ok := props["title"].(string); ok {
		t.Title = v
	}
	if v, ok := props["description"].(string); ok {
		t.Description = v
	}
	if v, ok := props["status"].(string); ok {
		t.Status = v
	}
	if v, ok := props["priority"].(string); ok {
		t.Priority = v
	}
	if v, ok := props["assignee"].(string); ok {
		t.Assignee = v
	}
	if v, ok := props["due_date"].(string); ok {
		t.DueDate = v
	}
	if v, ok := props["progress"].(int64); ok {
		t.Progress = int(v)
	}
	if v, ok := props["tags"].([]any); ok {
		for _, tag := range v {
			if s, ok := tag.(string); ok {
				t.Tags = append(t.Tags, s)
			}
		}
	}
	if v, ok := props["created_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			t.CreatedAt = parsed
		}
	}
	if v, ok := props["updated_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			t.UpdatedAt = parsed
		}
	}
	if v, ok := props["completed_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			t.CompletedAt = &parsed
		}
	}
	return t
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

func schema(required []string, props string) json.RawMessage {
	req, _ := json.Marshal(required)
	return json.RawMessage(fmt.Sprintf(`{"type":"object","properties":{%s},"required":%s}`, props, req))
}

func newTaskID() string { return uuid.NewString() }

func anyTagMatch(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

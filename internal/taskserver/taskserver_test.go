package taskserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskFromProps(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	props := map[string]any{
		"title":        "Ship it",
		"description":  "final pass",
		"status":       "in_progress",
		"priority":     "high",
		"assignee":     "agent-7",
		"progress":     int64(40),
		"tags":         []any{"release", "infra"},
		"created_at":   now.Format(time.RFC3339),
		"updated_at":   now.Format(time.RFC3339),
		"completed_at": now.Format(time.RFC3339),
	}

	task := taskFromProps("t1", props)
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, "Ship it", task.Title)
	assert.Equal(t, "in_progress", task.Status)
	assert.Equal(t, "high", task.Priority)
	assert.Equal(t, 40, task.Progress)
	assert.Equal(t, []string{"release", "infra"}, task.Tags)
	assert.Equal(t, now, task.CreatedAt)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, now, *task.CompletedAt)
}

func TestTaskFromProps_Defaults(t *testing.T) {
	task := taskFromProps("t2", map[string]any{})
	assert.Equal(t, StatusPending, task.Status)
	assert.Zero(t, task.Progress)
	assert.Nil(t, task.CompletedAt)
}

func TestAnyTagMatch(t *testing.T) {
	assert.True(t, anyTagMatch([]string{"a", "b"}, nil))
	assert.True(t, anyTagMatch([]string{"a", "b"}, []string{"b", "c"}))
	assert.False(t, anyTagMatch([]string{"a"}, []string{"x"}))
	assert.False(t, anyTagMatch(nil, []string{"x"}))
}

func TestRenameUpdateFields(t *testing.T) {
	out := renameUpdateFields(map[string]any{"dueDate": "2026-08-10", "title": "t"})
	assert.Equal(t, "2026-08-10", out["due_date"])
	assert.Equal(t, "t", out["title"])
	assert.NotContains(t, out, "dueDate")
}

func TestToolSchemasAreRegistered(t *testing.T) {
	s := New(nil, nil)
	defs := s.Registry().List()
	require.Len(t, defs, 9)
	names := s.ToolNames()
	assert.Contains(t, names, "create_task")
	assert.Contains(t, names, "complete_task")
	assert.Contains(t, names, "set_dependency")
	for _, d := range defs {
		assert.NotEmpty(t, d.Description, d.Name)
		assert.NotEmpty(t, d.InputSchema, d.Name)
	}
}

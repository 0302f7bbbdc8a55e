package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedTool struct{ name string }

func (t namedTool) Name() string                 { return t.name }
func (t namedTool) Description() string          { return "tool " + t.name }
func (t namedTool) InputSchema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t namedTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	return JSONResult(map[string]string{"tool": t.name})
}

func TestRegistry_ListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Register(namedTool{name: fmt.Sprintf("tool-%d", i)})
	}

	defs := r.List()
	require.Len(t, defs, 5)
	for i, d := range defs {
		assert.Equal(t, fmt.Sprintf("tool-%d", i), d.Name)
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(namedTool{name: "a"})

	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(namedTool{name: "a"})
	assert.Panics(t, func() { r.Register(namedTool{name: "a"}) })
}

func TestJSONResult(t *testing.T) {
	res, err := JSONResult(map[string]int{"n": 1})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"n":1}`, res.Content[0].Text)
}

func TestErrorResult(t *testing.T) {
	res := ErrorResult("boom")
	assert.True(t, res.IsError)
	assert.Equal(t, "boom", res.Content[0].Text)
}

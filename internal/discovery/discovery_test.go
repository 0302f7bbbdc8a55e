package discovery

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubServer struct {
	name    string
	tools   []string
	healthy bool
}

func (f *fakeSubServer) Name() string        { return f.name }
func (f *fakeSubServer) ToolNames() []string { return f.tools }
func (f *fakeSubServer) HealthProbe(ctx context.Context) error {
	if f.healthy {
		return nil
	}
	return errors.New("backend unreachable")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestRegistry_RegisterIdempotent(t *testing.T) {
	r := New(testLogger())
	s1 := &fakeSubServer{name: "graph", tools: []string{"graph_create_entity"}}
	s2 := &fakeSubServer{name: "graph", tools: []string{"graph_other"}}

	first := r.Register(s1, nil)
	second := r.Register(s2, nil)

	assert.Same(t, first, second)
	assert.Equal(t, []string{"graph_create_entity"}, first.Tools)
}

func TestRegistry_DiscoverToolsAndRoute(t *testing.T) {
	r := New(testLogger())
	r.Register(&fakeSubServer{name: "graph", tools: []string{"graph_create_entity", "graph_find"}}, nil)
	r.Register(&fakeSubServer{name: "chain", tools: []string{"chain_start"}}, nil)

	tools := r.DiscoverTools()
	assert.Equal(t, "graph", tools["graph_create_entity"])
	assert.Equal(t, "chain", tools["chain_start"])

	owner, ok := r.RouteTool("chain_start")
	require.True(t, ok)
	assert.Equal(t, "chain", owner)

	_, ok = r.RouteTool("nonexistent_tool")
	assert.False(t, ok)
}

func TestRegistry_Unregister(t *testing.T) {
	r := New(testLogger())
	r.Register(&fakeSubServer{name: "graph", tools: []string{"graph_create_entity"}}, nil)
	r.Unregister("graph")

	_, ok := r.Get("graph")
	assert.False(t, ok)
	assert.Empty(t, r.List())
}

func TestRegistry_HealthProbe(t *testing.T) {
	r := New(testLogger())
	r.Register(&fakeSubServer{name: "healthy-one", healthy: true}, nil)
	r.Register(&fakeSubServer{name: "unhealthy-one", healthy: false}, nil)

	ctx := context.Background()
	r.HealthProbe(ctx, "healthy-one")
	r.HealthProbe(ctx, "unhealthy-one")

	healthy, _ := r.Get("healthy-one")
	unhealthy, _ := r.Get("unhealthy-one")
	assert.Equal(t, "healthy", healthy.Status)
	assert.Equal(t, "unhealthy", unhealthy.Status)
}

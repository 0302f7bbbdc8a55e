package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew_DefaultsNamespace(t *testing.T) {
	m := New("")
	m.ObserveToolCall("graph", "graph_create_entity", "ok", 0.01)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ToolCallTotal.WithLabelValues("graph", "graph_create_entity", "ok")))
}

func TestObserveToolCallError(t *testing.T) {
	m := New("testns")
	m.ObserveToolCallError("model", "chat", "backend_unavailable")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ToolCallErrors.WithLabelValues("model", "chat", "backend_unavailable")))
}

func TestSetSubServerHealth(t *testing.T) {
	m := New("testns2")
	m.SetSubServerHealth("chain", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SubServerHealth.WithLabelValues("chain")))

	m.SetSubServerHealth("chain", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.SubServerHealth.WithLabelValues("chain")))
}

// Package dispatcher implements the hub's transport-agnostic core: it
// multiplexes tools/list, tools/call, resources/list and
// resources/read onto the sub-server registered in discovery, wrapping
// every tool_call in the governance pipeline.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/emergent-company/memoryhub/internal/discovery"
	"github.com/emergent-company/memoryhub/internal/governance"
	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/metrics"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

// SubServer is what a sub-server must expose to be dispatched to: its
// discovery identity plus its private tool registry.
type SubServer interface {
	discovery.SubServer
	Registry() *mcp.Registry
}

// Dispatcher routes requests across every registered sub-server.
type Dispatcher struct {
	registry   *discovery.Registry
	governance *governance.Middleware
	metrics    *metrics.Metrics
	logger     *slog.Logger
	servers    map[string]SubServer
}

// New creates a Dispatcher bound to the hub's discovery registry,
// governance middleware, and metrics sinks.
func New(registry *discovery.Registry, gov *governance.Middleware, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		governance: gov,
		metrics:    m,
		logger:     logger,
		servers:    make(map[string]SubServer),
	}
}

// Register adds a sub-server to both discovery and the dispatcher's own
// lookup table (discovery only tracks the narrower SubServer shape).
func (d *Dispatcher) Register(s SubServer, capabilities []string) {
	d.registry.Register(s, capabilities)
	d.servers[s.Name()] = s
}

// ToolsList flattens every registered sub-server's tools, in registration
// order.
func (d *Dispatcher) ToolsList() []mcp.ToolDefinition {
	var defs []mcp.ToolDefinition
	for _, reg := range d.registry.List() {
		s, ok := d.servers[reg.Name]
		if !ok {
			continue
		}
		defs = append(defs, s.Registry().List()...)
	}
	return defs
}

// ResourcesList flattens every registered sub-server's resources.
func (d *Dispatcher) ResourcesList() []mcp.ResourceDefinition {
	var defs []mcp.ResourceDefinition
	for _, reg := range d.registry.List() {
		s, ok := d.servers[reg.Name]
		if !ok {
			continue
		}
		defs = append(defs, s.Registry().ListResources()...)
	}
	return defs
}

// ResourcesRead finds the sub-server owning uri and reads it.
func (d *Dispatcher) ResourcesRead(uri string) (*mcp.ResourcesReadResult, error) {
	for _, reg := range d.registry.List() {
		s, ok := d.servers[reg.Name]
		if !ok {
			continue
		}
		if res := s.Registry().GetResource(uri); res != nil {
			return res.Read()
		}
	}
	return nil, taxonomy.New(taxonomy.NotFound, fmt.Sprintf("resource not found: %s", uri))
}

// ToolsCall routes a tools/call request. If server is non-empty it names
// the target sub-server directly (as POST /tools/call's {server, tool,
// arguments} shape requires); otherwise the tool name is routed via
// discovery, matching the bare MCP tools/call contract.
func (d *Dispatcher) ToolsCall(ctx context.Context, server, tool string, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	name := server
	if name == "" {
		routed, ok := d.registry.RouteTool(tool)
		if !ok {
			return mcp.ErrorResult(fmt.Sprintf("tool not found: %s", tool)), nil
		}
		name = routed
	}

	s, ok := d.servers[name]
	if !ok {
		return mcp.ErrorResult(fmt.Sprintf("sub-server not found: %s", name)), nil
	}

	t := s.Registry().Get(tool)
	if t == nil {
		return mcp.ErrorResult(fmt.Sprintf("tool not found: %s", tool)), nil
	}

	if d.metrics != nil {
		d.metrics.InFlightDispatches.Inc()
		defer d.metrics.InFlightDispatches.Dec()
	}

	start := time.Now()
	record := governance.LogRecord{
		Timestamp: start.UTC().Format("2006-01-02T15:04:05.000Z"),
		Type:      "tool_call",
		Source:    name,
		Action:    tool,
		Context:   map[string]any{"arguments": json.RawMessage(args)},
	}

	raw, err := d.governance.Guard(record, func() (any, error) {
		return t.Execute(ctx, args)
	})

	status := "ok"
	if err != nil {
		status = string(taxonomy.KindOf(err))
	}
	if d.metrics != nil {
		d.metrics.ObserveToolCall(name, tool, status, time.Since(start).Seconds())
	}

	if err != nil {
		if d.metrics != nil {
			d.metrics.ObserveToolCallError(name, tool, string(taxonomy.KindOf(err)))
			if taxonomy.Of(err, taxonomy.GovernanceBlocked) {
				d.metrics.GovernanceBlocked.WithLabelValues("pre_check").Inc()
			}
		}
		d.logger.Error("tool call blocked or failed", "server", name, "tool", tool, "error", err)
		return mcp.ErrorResult(err.Error()), err
	}

	result, ok := raw.(*mcp.ToolsCallResult)
	if !ok {
		return mcp.ErrorResult("tool returned an unexpected result type"), nil
	}
	return result, nil
}

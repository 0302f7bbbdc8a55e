// Package discovery maintains a process-wide registry mapping sub-server
// names to their tools and health status, and periodically probes each
// registered sub-server's health.
package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SubServer is anything discovery can register and route tool calls to.
type SubServer interface {
	Name() string
	ToolNames() []string
	HealthProbe(ctx context.Context) error
}

// Registration is one entry in the discovery registry.
type Registration struct {
	Name         string
	Tools        []string
	Capabilities []string
	Status       string // "healthy", "unhealthy", "unknown"
	RegisteredAt time.Time
	server       SubServer
}

// Registry is a process-wide, mutex-guarded map of sub-server name to
// Registration. Lookups are expected to be frequent and fast; mutations
// (register/unregister) are rare.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Registration
	order  []string

	logger   *slog.Logger
	cron     *cron.Cron
	onStatus func(name string, healthy bool)
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		byName: make(map[string]*Registration),
		logger: logger,
	}
}

// OnStatusChange installs a hook invoked after every health probe with the
// probed sub-server's result. Used to feed the health gauge. Call before
// StartHealthProbes.
func (r *Registry) OnStatusChange(fn func(name string, healthy bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStatus = fn
}

// Register adds a sub-server, idempotent on name collision: a second
// registration with the same name logs a warning and returns the existing
// entry rather than replacing it.
func (r *Registry) Register(s SubServer, capabilities []string) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[s.Name()]; ok {
		r.logger.Warn("sub-server already registered, ignoring duplicate", "name", s.Name())
		return existing
	}

	reg := &Registration{
		Name:         s.Name(),
		Tools:        s.ToolNames(),
		Capabilities: capabilities,
		Status:       "unknown",
		RegisteredAt: time.Now().UTC(),
		server:       s,
	}
	r.byName[s.Name()] = reg
	r.order = append(r.order, s.Name())
	return reg
}

// Unregister removes a sub-server from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// DiscoverTools flattens every registered sub-server's tool names into a
// single name -> owning-sub-server map.
func (r *Registry) DiscoverTools() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string)
	for _, name := range r.order {
		reg := r.byName[name]
		for _, tool := range reg.Tools {
			if _, exists := out[tool]; !exists {
				out[tool] = name
			}
		}
	}
	return out
}

// RouteTool finds the first sub-server (by registration order) offering the
// given tool name. Returns "", false if no sub-server offers it.
func (r *Registry) RouteTool(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, subName := range r.order {
		reg := r.byName[subName]
		for _, tool := range reg.Tools {
			if tool == name {
				return subName, true
			}
		}
	}
	return "", false
}

// Get returns a snapshot of a registration by name.
func (r *Registry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// List returns a snapshot of every registration in registration order.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.byName[name])
	}
	return out
}

// HealthProbe invokes HealthProbe on a single sub-server and updates its
// status.
func (r *Registry) HealthProbe(ctx context.Context, name string) {
	r.mu.RLock()
	reg, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return
	}

	status := "healthy"
	if err := reg.server.HealthProbe(ctx); err != nil {
		status = "unhealthy"
		r.logger.Warn("sub-server health probe failed", "name", name, "error", err)
	}

	r.mu.Lock()
	if current, ok := r.byName[name]; ok {
		current.Status = status
	}
	hook := r.onStatus
	r.mu.Unlock()

	if hook != nil {
		hook(name, status == "healthy")
	}
}

// probeAll runs HealthProbe for every registered sub-server.
func (r *Registry) probeAll(ctx context.Context) {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.RUnlock()

	for _, name := range names {
		r.HealthProbe(ctx, name)
	}
}

// StartHealthProbes schedules probeAll on the given cron expression (e.g.
// "@every 30s") and returns a stop function. Safe to call once per Registry.
func (r *Registry) StartHealthProbes(ctx context.Context, schedule string) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() { r.probeAll(ctx) })
	if err != nil {
		return nil, err
	}
	c.Start()
	r.cron = c
	return func() { <-c.Stop().Done() }, nil
}

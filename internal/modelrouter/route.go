package modelrouter

import (
	"context"
	"strings"
	"time"
)

// RouteResult is the outcome of a routed completion: which model actually
// served the request, whether routing downgraded to the fallback, and the
// runtime's raw response.
type RouteResult struct {
	Model      string         `json:"model"`
	Downgraded bool           `json:"downgraded,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Response   map[string]any `json:"response"`
}

// Route resolves a model for the given task class (explicit model > class
// default > fallback), verifies it against the cached inventory, downgrades
// to the fallback when the primary is not installed, and runs the prompt.
func (r *Router) Route(ctx context.Context, class, model, prompt string) (*RouteResult, error) {
	selected := model
	if selected == "" {
		selected = r.ModelFor(class)
	}

	downgraded := false
	if ok, err := r.available(ctx, selected); err == nil && !ok {
		r.mu.RLock()
		fallback := r.fallback
		r.mu.RUnlock()
		if fallback != "" && fallback != selected {
			r.logger.Warn("model_downgraded", "class", class, "requested", selected, "fallback", fallback)
			selected = fallback
			downgraded = true
		}
	}

	start := time.Now()
	resp, err := r.Complete(ctx, selected, class, prompt)
	if err != nil {
		return nil, err
	}
	return &RouteResult{
		Model:      selected,
		Downgraded: downgraded,
		DurationMs: time.Since(start).Milliseconds(),
		Response:   resp,
	}, nil
}

// available reports whether name is present in the (TTL-cached) inventory.
// A bare model name matches any installed tag of that model.
func (r *Router) available(ctx context.Context, name string) (bool, error) {
	models, err := r.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.Name == name || strings.HasPrefix(m.Name, name+":") {
			return true, nil
		}
	}
	return false, nil
}

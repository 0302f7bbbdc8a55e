// Package modelrouter routes MCP tool calls onto local LLM runtimes,
// maintaining a TTL'd inventory cache and a task-class -> model routing
// table.
package modelrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

// ModelInfo describes one model available on the runtime.
type ModelInfo struct {
	Name       string         `json:"name"`
	Size       int64          `json:"size"`
	Digest     string         `json:"digest"`
	ModifiedAt string         `json:"modified_at"`
	Details    map[string]any `json:"details,omitempty"`
}

// Router dispatches chat/embed/vision requests to the configured local model
// runtime, applying task-class routing, a TTL'd model inventory cache, retry
// with exponential backoff, and a circuit breaker independent of the retry
// loop (trips to BackendUnavailable after repeated failures).
type Router struct {
	baseURL       string
	httpClient    *http.Client
	logger        *slog.Logger
	retries       int
	classDefaults map[string]string
	fallback      string

	breaker *gobreaker.CircuitBreaker

	mu           sync.RWMutex
	inventory    []ModelInfo
	inventoryAt  time.Time
	inventoryTTL time.Duration
}

// New creates a Router against the configured model runtime host:port.
func New(cfg config.ModelConfig, logger *slog.Logger) *Router {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "modelrouter",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("model router circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	})

	return &Router{
		baseURL:       fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port),
		httpClient:    &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		logger:        logger,
		retries:       cfg.Retries,
		classDefaults: cfg.ClassDefaults,
		fallback:      cfg.Fallback,
		breaker:       breaker,
		inventoryTTL:  time.Duration(cfg.InventoryTTLSec) * time.Second,
	}
}

// ModelFor resolves a task class (e.g. "reasoning", "coding") to a concrete
// model name, falling back to the configured fallback model if the class is
// unknown or unset.
func (r *Router) ModelFor(class string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.classDefaults[class]; ok && m != "" {
		return m
	}
	return r.fallback
}

// Chat sends a chat completion request, routing by task class when model is
// empty.
func (r *Router) Chat(ctx context.Context, model, class string, messages []map[string]string, stream bool) (map[string]any, error) {
	if model == "" {
		model = r.ModelFor(class)
	}
	body := map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   stream,
	}
	return r.post(ctx, "/api/chat", body)
}

// Complete sends a raw completion request (no chat history).
func (r *Router) Complete(ctx context.Context, model, class, prompt string) (map[string]any, error) {
	if model == "" {
		model = r.ModelFor(class)
	}
	body := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	}
	return r.post(ctx, "/api/generate", body)
}

// Embed requests an embedding vector for text.
func (r *Router) Embed(ctx context.Context, model, text string) (map[string]any, error) {
	if model == "" {
		model = r.ModelFor("embedding")
	}
	body := map[string]any{"model": model, "prompt": text}
	return r.post(ctx, "/api/embeddings", body)
}

// Vision sends an image-grounded chat request.
func (r *Router) Vision(ctx context.Context, model, prompt string, images []string) (map[string]any, error) {
	if model == "" {
		model = r.ModelFor("vision")
	}
	body := map[string]any{
		"model":  model,
		"prompt": prompt,
		"images": images,
		"stream": false,
	}
	return r.post(ctx, "/api/generate", body)
}

// ListModels returns the cached inventory, refreshing it if the TTL elapsed.
func (r *Router) ListModels(ctx context.Context) ([]ModelInfo, error) {
	r.mu.RLock()
	fresh := time.Since(r.inventoryAt) < r.inventoryTTL && r.inventory != nil
	cached := r.inventory
	r.mu.RUnlock()
	if fresh {
		return cached, nil
	}
	return r.RefreshInventory(ctx)
}

// RefreshInventory forces an inventory reload regardless of the TTL.
func (r *Router) RefreshInventory(ctx context.Context) ([]ModelInfo, error) {
	resp, err := r.get(ctx, "/api/tags")
	if err != nil {
		return nil, err
	}
	modelsRaw, _ := resp["models"].([]any)
	out := make([]ModelInfo, 0, len(modelsRaw))
	for _, m := range modelsRaw {
		mm, ok := m.(map[string]any)
		if !ok {
			continue
		}
		info := ModelInfo{}
		if v, ok := mm["name"].(string); ok {
			info.Name = v
		}
		if v, ok := mm["digest"].(string); ok {
			info.Digest = v
		}
		if v, ok := mm["modified_at"].(string); ok {
			info.ModifiedAt = v
		}
		if v, ok := mm["size"].(float64); ok {
			info.Size = int64(v)
		}
		out = append(out, info)
	}

	r.mu.Lock()
	r.inventory = out
	r.inventoryAt = time.Now()
	r.mu.Unlock()

	return out, nil
}

// GetModelInfo retrieves detail for a single model.
func (r *Router) GetModelInfo(ctx context.Context, name string) (map[string]any, error) {
	return r.post(ctx, "/api/show", map[string]any{"name": name})
}

// PullModel triggers a model pull on the runtime. Streaming progress is
// collapsed into a final status, matching the non-streaming tool contract.
func (r *Router) PullModel(ctx context.Context, name string) (map[string]any, error) {
	resp, err := r.post(ctx, "/api/pull", map[string]any{"name": name, "stream": false})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.inventory = nil
	r.mu.Unlock()
	return resp, nil
}

// SetDefault overrides the model routed for a task class for the lifetime
// of this process. An empty class (or "fallback") replaces the shared
// fallback model instead. Durable defaults belong in config.
func (r *Router) SetDefault(class, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if class == "" || class == "fallback" {
		r.fallback = model
		return
	}
	if r.classDefaults == nil {
		r.classDefaults = make(map[string]string)
	}
	r.classDefaults[class] = model
}

// post issues an HTTP POST wrapped in retry and the circuit breaker.
func (r *Router) post(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.InvalidInput, "encoding request body", err)
	}

	var result map[string]any
	err = r.withRetry(ctx, path, func() error {
		v, cbErr := r.breaker.Execute(func() (any, error) {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
			if reqErr != nil {
				return nil, reqErr
			}
			req.Header.Set("Content-Type", "application/json")
			return r.do(req)
		})
		if cbErr != nil {
			return cbErr
		}
		result = v.(map[string]any)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Router) get(ctx context.Context, path string) (map[string]any, error) {
	var result map[string]any
	err := r.withRetry(ctx, path, func() error {
		v, cbErr := r.breaker.Execute(func() (any, error) {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
			if reqErr != nil {
				return nil, reqErr
			}
			return r.do(req)
		})
		if cbErr != nil {
			return cbErr
		}
		result = v.(map[string]any)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Router) do(req *http.Request) (map[string]any, error) {
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("model runtime returned %d: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode >= 400 {
		return nil, taxonomy.New(taxonomy.InvalidInput, fmt.Sprintf("model runtime rejected request: %d: %s", resp.StatusCode, string(data)))
	}

	var out map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decoding model runtime response: %w", err)
		}
	}
	return out, nil
}

// shouldRetry reports whether an error from the model runtime is safe to
// retry: network-level failures and context deadlines, not 4xx rejections
// or an open circuit breaker.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if taxonomy.Of(err, taxonomy.InvalidInput) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}

// withRetry wraps fn with exponential backoff: one initial attempt plus at
// most r.retries retries.
func (r *Router) withRetry(ctx context.Context, operation string, fn func() error) error {
	const (
		initialBackoff = 250 * time.Millisecond
		maxBackoff     = 10 * time.Second
	)

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(1<<uint(attempt-1))
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			r.logger.Warn("retrying model runtime request", "operation", operation, "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return taxonomy.Wrap(taxonomy.Timeout, operation+": context cancelled during retry", ctx.Err())
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !shouldRetry(err) {
			return translateErr(operation, err)
		}
	}
	return translateErr(operation, lastErr)
}

func translateErr(operation string, err error) error {
	if err == nil {
		return nil
	}
	var te *taxonomy.Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return taxonomy.Wrap(taxonomy.BackendUnavailable, operation+": model runtime circuit open", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return taxonomy.Wrap(taxonomy.Timeout, operation+": deadline exceeded", err)
	}
	return taxonomy.Wrap(taxonomy.BackendUnavailable, operation+": model runtime unreachable", err)
}

// Health reports whether the model runtime is reachable.
func (r *Router) Health(ctx context.Context) bool {
	_, err := r.get(ctx, "/api/tags")
	return err == nil
}

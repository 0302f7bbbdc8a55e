// Package chainserver implements the reasoning-chain sub-server:
// a state machine per chain (in_progress -> completed/failed) with
// ordered, immutable steps, copy-on-branch, and dual persistence to the
// graph and a notebook export.
package chainserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emergent-company/memoryhub/internal/graphstore"
	"github.com/emergent-company/memoryhub/internal/guards"
	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/notebook"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

const Name = "reasoning-chain"

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

	labelChain = "ReasoningChain"
	labelStep  = "ReasoningStep"
)

// Step is one immutable entry in a chain's reasoning trace.
type Step struct {
	Number     int            `json:"stepNumber"`
	Thought    string         `json:"thought"`
	StepType   string         `json:"stepType"`
	Confidence *float64       `json:"confidence,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Chain is the in-memory (and graph-persisted) state of a reasoning chain.
type Chain struct {
	ID          string     `json:"id"`
	Prompt      string     `json:"prompt"`
	Goal        string     `json:"goal,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Status      string     `json:"status"`
	Steps       []Step     `json:"steps"`
	Conclusion  string     `json:"conclusion,omitempty"`
	Confidence  *float64   `json:"confidence,omitempty"`
	BranchFrom  string     `json:"branchFrom,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Server is the reasoning-chain sub-server: a live write-through cache
// backed by the graph store, with notebook export on conclude.
type Server struct {
	pool     *graphstore.Pool
	vault    *notebook.Vault
	registry *mcp.Registry
	guards   *guards.Runner
	logger   *slog.Logger

	mu      sync.Mutex
	chains  map[string]*Chain
	locks   map[string]*sync.Mutex
	pending map[string]bool // chain ids whose notebook export has not landed
}

// New builds the reasoning-chain sub-server and registers its tools.
func New(pool *graphstore.Pool, vault *notebook.Vault, logger *slog.Logger) *Server {
	s := &Server{
		pool:     pool,
		vault:    vault,
		registry: mcp.NewRegistry(),
		guards:   guards.NewRunner(),
		logger:   logger,
		chains:   make(map[string]*Chain),
		locks:    make(map[string]*sync.Mutex),
		pending:  make(map[string]bool),
	}
	for _, t := range []mcp.Tool{
		&startThinkingTool{s}, &addStepTool{s}, &concludeTool{s},
		&getChainTool{s}, &listChainsTool{s}, &branchChainTool{s},
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

// lockFor returns the per-chain mutex serializing add_step/conclude calls,
// so step numbers stay contiguous and monotonic.
func (s *Server) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// hydrate loads a chain from the graph into the live cache if it is not
// already resident. The graph is the source of truth; the map is a
// write-through cache.
func (s *Server) hydrate(ctx context.Context, id string) (*Chain, error) {
	s.mu.Lock()
	if c, ok := s.chains[id]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	ent, err := s.pool.GetEntity(ctx, labelChain, id)
	if err != nil {
		return nil, err
	}
	chain := chainFromProps(id, ent.Properties)

	rels, err := s.pool.GetRelationshipsFor(ctx, labelChain, id, "HAS_STEP", "out", 10000)
	if err == nil {
		steps := make([]Step, 0, len(rels))
		for _, r := range rels {
			stepEnt, err := s.pool.GetEntity(ctx, labelStep, r.ToID)
			if err != nil {
				continue
			}
			steps = append(steps, stepFromProps(stepEnt.Properties))
		}
		chain.Steps = orderSteps(steps)
	}

	s.mu.Lock()
	s.chains[id] = chain
	s.mu.Unlock()
	return chain, nil
}

func orderSteps(steps []Step) []Step {
	ordered := make([]Step, len(steps))
	for _, st := range steps {
		if st.Number >= 1 && st.Number <= len(ordered) {
			ordered[st.Number-1] = st
		}
	}
	return ordered
}

func chainFromProps(id string, props map[string]any) *Chain {
	c := &Chain{ID: id}
	if v, ok := props["prompt"].(string); ok {
		c.Prompt = v
	}
	if v, ok := props["goal"].(string); ok {
		c.Goal = v
	}
	if v, ok := props["status"].(string); ok {
		c.Status = v
	}
	if v, ok := props["conclusion"].(string); ok {
		c.Conclusion = v
	}
	if v, ok := props["branch_from"].(string); ok {
		c.BranchFrom = v
	}
	if v, ok := props["confidence"].(float64); ok {
		c.Confidence = &v
	}
	if v, ok := props["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			c.CreatedAt = t
		}
	}
	if v, ok := props["completed_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			c.CompletedAt = &t
		}
	}
	if v, ok := props["tags"].([]any); ok {
		for _, tag := range v {
			if s, ok := tag.(string); ok {
				c.Tags = append(c.Tags, s)
			}
		}
	}
	return c
}

func stepFromProps(props map[string]any) Step {
	st := Step{}
	if v, ok := props["step_number"].(int64); ok {
		st.Number = int(v)
	}
	if v, ok := props["thought"].(string); ok {
		st.Thought = v
	}
	if v, ok := props["step_type"].(string); ok {
		st.StepType = v
	}
	if v, ok := props["confidence"].(float64); ok {
		st.Confidence = &v
	}
	if v, ok := props["payload"].(string); ok && v != "" {
		var payload map[string]any
		if json.Unmarshal([]byte(v), &payload) == nil {
			st.Payload = payload
		}
	}
	return st
}

func chainToProps(c *Chain) map[string]any {
	props := map[string]any{
		"prompt": c.Prompt,
		"status": c.Status,
	}
	if c.Goal != "" {
		props["goal"] = c.Goal
	}
	if c.Conclusion != "" {
		props["conclusion"] = c.Conclusion
	}
	if c.BranchFrom != "" {
		props["branch_from"] = c.BranchFrom
	}
	if c.Confidence != nil {
		props["confidence"] = *c.Confidence
	}
	if len(c.Tags) > 0 {
		tags := make([]any, len(c.Tags))
		for i, t := range c.Tags {
			tags[i] = t
		}
		props["tags"] = tags
	}
	if c.CompletedAt != nil {
		props["completed_at"] = c.CompletedAt.UTC().Format(time.RFC3339)
	}
	return props
}

func stepToProps(st Step) map[string]any {
	props := map[string]any{
		"step_number": st.Number,
		"thought":     st.Thought,
		"step_type":   st.StepType,
	}
	if st.Confidence != nil {
		props["confidence"] = *st.Confidence
	}
	if len(st.Payload) > 0 {
		b, _ := json.Marshal(st.Payload)
		props["payload"] = string(b)
	}
	return props
}

func newChainID() string { return uuid.NewString() }

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

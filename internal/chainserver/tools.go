package chainserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/emergent-company/memoryhub/internal/guards"
	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
	"github.com/emergent-company/memoryhub/internal/validation"
)

// --- start_thinking ---

type startThinkingTool struct{ s *Server }

func (t *startThinkingTool) Name() string { return "start_thinking" }
func (t *startThinkingTool) Description() string {
	return "Start a new reasoning chain, optionally branching from an existing one."
}
func (t *startThinkingTool) InputSchema() json.RawMessage {
	return schema([]string{"prompt"},
		`"prompt":{"type":"string"},"context":{"type":"object"},"goal":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}},"branchFrom":{"type":"string"}`)
}

func (t *startThinkingTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Prompt     string   `json:"prompt"`
		Goal       string   `json:"goal"`
		Tags       []string `json:"tags"`
		BranchFrom string   `json:"branchFrom"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	chain := &Chain{
		ID:         newChainID(),
		Prompt:     args.Prompt,
		Goal:       args.Goal,
		Tags:       args.Tags,
		Status:     StatusInProgress,
		BranchFrom: args.BranchFrom,
		CreatedAt:  time.Now().UTC(),
	}

	if _, err := t.s.pool.CreateEntity(ctx, labelChain, chain.ID, chainToProps(chain)); err != nil {
		return errEnvelope(t.Name(), err)
	}

	if args.BranchFrom != "" {
		if _, err := t.s.pool.CreateRelationship(ctx, "BRANCHED_TO", labelChain, args.BranchFrom, labelChain, chain.ID, nil); err != nil {
			return errEnvelope(t.Name(), err)
		}
	}

	t.s.mu.Lock()
	t.s.chains[chain.ID] = chain
	t.s.mu.Unlock()

	return mcp.JSONResult(map[string]any{"chainId": chain.ID})
}

// --- add_step ---

type addStepTool struct{ s *Server }

func (t *addStepTool) Name() string { return "add_step" }
func (t *addStepTool) Description() string {
	return "Append an ordered, immutable step to a reasoning chain."
}
func (t *addStepTool) InputSchema() json.RawMessage {
	return schema([]string{"chainId", "thought"},
		`"chainId":{"type":"string"},"thought":{"type":"string"},"stepType":{"type":"string","enum":["observation","analysis","inference","conclusion","question","hypothesis"]},"confidence":{"type":"number"},"data":{"type":"object"}`)
}

func (t *addStepTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		ChainID    string         `json:"chainId"`
		Thought    string         `json:"thought"`
		StepType   string         `json:"stepType"`
		Confidence *float64       `json:"confidence"`
		Data       map[string]any `json:"data"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	if args.StepType == "" {
		args.StepType = "analysis"
	}

	lock := t.s.lockFor(args.ChainID)
	lock.Lock()
	defer lock.Unlock()

	chain, err := t.s.hydrate(ctx, args.ChainID)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	gctx := &guards.GuardContext{ChainStatus: chain.Status, StepType: args.StepType}
	if outcome := t.s.guards.Run(ctx, gctx, guards.ChainStepGuards); outcome.Blocked {
		return errEnvelope(t.Name(), taxonomy.New(taxonomy.InvalidInput, outcome.FormatBlockMessage()))
	}

	step := Step{
		Number:     len(chain.Steps) + 1,
		Thought:    args.Thought,
		StepType:   args.StepType,
		Confidence: args.Confidence,
		Payload:    args.Data,
	}

	stepID := fmt.Sprintf("%s-step-%d", args.ChainID, step.Number)
	if _, err := t.s.pool.CreateEntity(ctx, labelStep, stepID, stepToProps(step)); err != nil {
		return errEnvelope(t.Name(), err)
	}
	if _, err := t.s.pool.CreateRelationship(ctx, "HAS_STEP", labelChain, args.ChainID, labelStep, stepID, map[string]any{"order": step.Number}); err != nil {
		return errEnvelope(t.Name(), err)
	}

	chain.Steps = append(chain.Steps, step)
	return mcp.JSONResult(map[string]any{"stepNumber": step.Number, "chainId": args.ChainID})
}

// --- conclude ---

type concludeTool struct{ s *Server }

func (t *concludeTool) Name() string { return "conclude" }
func (t *concludeTool) Description() string {
	return "Terminate a reasoning chain as completed or failed and export it to the notebook vault."
}
func (t *concludeTool) InputSchema() json.RawMessage {
	return schema([]string{"chainId", "conclusion"},
		`"chainId":{"type":"string"},"conclusion":{"type":"string"},"success":{"type":"boolean"},"confidence":{"type":"number"}`)
}

func (t *concludeTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		ChainID    string   `json:"chainId"`
		Conclusion string   `json:"conclusion"`
		Success    *bool    `json:"success"`
		Confidence *float64 `json:"confidence"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	success := true
	if args.Success != nil {
		success = *args.Success
	}

	lock := t.s.lockFor(args.ChainID)
	lock.Lock()
	defer lock.Unlock()

	chain, err := t.s.hydrate(ctx, args.ChainID)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	if chain.Status != StatusInProgress {
		// Idempotent repeat of the same conclusion succeeds; a conflicting
		// conclude is rejected.
		if chain.Conclusion == args.Conclusion {
			return mcp.JSONResult(map[string]any{"chainId": chain.ID, "status": chain.Status})
		}
		return errEnvelope(t.Name(), taxonomy.New(taxonomy.InvalidInput, "chain is already terminal with a different conclusion"))
	}

	target := StatusCompleted
	if !success {
		target = StatusFailed
	}
	if err := validation.ValidateChainTransition(chain.Status, target); err != nil {
		return errEnvelope(t.Name(), taxonomy.Wrap(taxonomy.InvalidInput, "illegal chain transition", err))
	}

	now := time.Now().UTC()
	chain.Status = target
	chain.Conclusion = args.Conclusion
	chain.Confidence = args.Confidence
	chain.CompletedAt = &now

	if _, err := t.s.pool.UpdateEntity(ctx, labelChain, chain.ID, chainToProps(chain)); err != nil {
		return errEnvelope(t.Name(), err)
	}

	// The terminal response never blocks on export success; a failed export
	// is queued for the retry job.
	if err := exportChain(t.s, chain); err != nil {
		t.s.logger.Warn("reasoning chain export failed, queued for retry", "chain_id", chain.ID, "error", err)
		t.s.markPendingExport(chain.ID)
	}

	return mcp.JSONResult(map[string]any{"chainId": chain.ID, "status": chain.Status})
}

// --- get_chain ---

type getChainTool struct{ s *Server }

func (t *getChainTool) Name() string        { return "get_chain" }
func (t *getChainTool) Description() string { return "Fetch a reasoning chain by id." }
func (t *getChainTool) InputSchema() json.RawMessage {
	return schema([]string{"chainId"}, `"chainId":{"type":"string"},"includeSteps":{"type":"boolean"}`)
}

func (t *getChainTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		ChainID      string `json:"chainId"`
		IncludeSteps *bool  `json:"includeSteps"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	chain, err := t.s.hydrate(ctx, args.ChainID)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	if args.IncludeSteps != nil && !*args.IncludeSteps {
		shallow := *chain
		shallow.Steps = nil
		return mcp.JSONResult(shallow)
	}
	return mcp.JSONResult(chain)
}

// --- list_chains ---

type listChainsTool struct{ s *Server }

func (t *listChainsTool) Name() string { return "list_chains" }
func (t *listChainsTool) Description() string {
	return "List reasoning chains, optionally filtered by status."
}
func (t *listChainsTool) InputSchema() json.RawMessage {
	return schema(nil, `"status":{"type":"string"},"limit":{"type":"integer"}`)
}

func (t *listChainsTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Status string `json:"status"`
		Limit  int    `json:"limit"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	match := map[string]any{}
	if args.Status != "" {
		match["status"] = args.Status
	}
	ents, err := t.s.pool.FindEntities(ctx, labelChain, match, args.Limit)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	chains := make([]*Chain, 0, len(ents))
	for _, e := range ents {
		chains = append(chains, chainFromProps(e.ID, e.Properties))
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].CreatedAt.After(chains[j].CreatedAt) })
	return mcp.JSONResult(map[string]any{"chains": chains})
}

// --- branch_chain ---

type branchChainTool struct{ s *Server }

func (t *branchChainTool) Name() string { return "branch_chain" }
func (t *branchChainTool) Description() string {
	return "Copy a chain's steps up to an optional step number into a new in-progress chain."
}
func (t *branchChainTool) InputSchema() json.RawMessage {
	return schema([]string{"chainId"}, `"chainId":{"type":"string"},"atStep":{"type":"integer"}`)
}

func (t *branchChainTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		ChainID string `json:"chainId"`
		AtStep  int    `json:"atStep"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	parent, err := t.s.hydrate(ctx, args.ChainID)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	cut := len(parent.Steps)
	if args.AtStep > 0 && args.AtStep < cut {
		cut = args.AtStep
	}

	child := &Chain{
		ID:         newChainID(),
		Prompt:     parent.Prompt,
		Goal:       parent.Goal,
		Tags:       append(append([]string{}, parent.Tags...), "branch"),
		Status:     StatusInProgress,
		BranchFrom: parent.ID,
		CreatedAt:  time.Now().UTC(),
		Steps:      append([]Step{}, parent.Steps[:cut]...),
	}

	if _, err := t.s.pool.CreateEntity(ctx, labelChain, child.ID, chainToProps(child)); err != nil {
		return errEnvelope(t.Name(), err)
	}
	if _, err := t.s.pool.CreateRelationship(ctx, "BRANCHED_TO", labelChain, parent.ID, labelChain, child.ID, nil); err != nil {
		return errEnvelope(t.Name(), err)
	}
	for _, st := range child.Steps {
		stepID := fmt.Sprintf("%s-step-%d", child.ID, st.Number)
		if _, err := t.s.pool.CreateEntity(ctx, labelStep, stepID, stepToProps(st)); err != nil {
			return errEnvelope(t.Name(), err)
		}
		if _, err := t.s.pool.CreateRelationship(ctx, "HAS_STEP", labelChain, child.ID, labelStep, stepID, map[string]any{"order": st.Number}); err != nil {
			return errEnvelope(t.Name(), err)
		}
	}

	t.s.mu.Lock()
	t.s.chains[child.ID] = child
	t.s.mu.Unlock()

	return mcp.JSONResult(map[string]any{"chainId": child.ID})
}

package taskserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/emergent-company/memoryhub/internal/guards"
	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

// runGuards executes a guard set and converts a blocked outcome into an
// InvalidInput error the tool envelope can surface.
func runGuards(ctx context.Context, r *guards.Runner, gctx *guards.GuardContext, set []guards.Guard) error {
	outcome := r.Run(ctx, gctx, set)
	if outcome.Blocked {
		return taxonomy.New(taxonomy.InvalidInput, outcome.FormatBlockMessage())
	}
	return nil
}

// --- create_task ---

type createTaskTool struct{ s *Server }

func (t *createTaskTool) Name() string { return "create_task" }
func (t *createTaskTool) Description() string {
	return "Create a task, optionally nested under a parent task."
}
func (t *createTaskTool) InputSchema() json.RawMessage {
	return schema([]string{"title"},
		`"title":{"type":"string"},"description":{"type":"string"},"priority":{"type":"string","enum":["critical","high","medium","low"]},"assignee":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}},"dueDate":{"type":"string"},"parentTaskId":{"type":"string"}`)
}

func (t *createTaskTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Title        string   `json:"title"`
		Description  string   `json:"description"`
		Priority     string   `json:"priority"`
		Assignee     string   `json:"assignee"`
		Tags         []string `json:"tags"`
		DueDate      string   `json:"dueDate"`
		ParentTaskID string   `json:"parentTaskId"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	if err := runGuards(ctx, t.s.guards, &guards.GuardContext{Priority: args.Priority}, guards.TaskUpdateGuards); err != nil {
		return errEnvelope(t.Name(), err)
	}

	now := time.Now().UTC()
	task := &Task{
		ID: newTaskID(), Title: args.Title, Description: args.Description,
		Status: StatusPending, Priority: args.Priority, Assignee: args.Assignee,
		Tags: args.Tags, DueDate: args.DueDate, Progress: 0,
		CreatedAt: now, UpdatedAt: now,
	}

	props := map[string]any{
		"title": task.Title, "description": task.Description, "status": task.Status,
		"priority": task.Priority, "assignee": task.Assignee, "due_date": task.DueDate,
		"progress": task.Progress,
	}
	if len(task.Tags) > 0 {
		tags := make([]any, len(task.Tags))
		for i, tag := range task.Tags {
			tags[i] = tag
		}
		props["tags"] = tags
	}

	if _, err := t.s.pool.CreateEntity(ctx, labelTask, task.ID, props); err != nil {
		return errEnvelope(t.Name(), err)
	}

	if args.ParentTaskID != "" {
		if _, err := t.s.pool.CreateRelationship(ctx, "HAS_SUBTASK", labelTask, args.ParentTaskID, labelTask, task.ID, nil); err != nil {
			return errEnvelope(t.Name(), err)
		}
	}

	return mcp.JSONResult(map[string]any{"taskId": task.ID, "task": task})
}

// --- get_task ---

type getTaskTool struct{ s *Server }

func (t *getTaskTool) Name() string { return "get_task" }
func (t *getTaskTool) Description() string {
	return "Fetch a task, optionally with its subtask summaries."
}
func (t *getTaskTool) InputSchema() json.RawMessage {
	return schema([]string{"taskId"}, `"taskId":{"type":"string"},"includeSubtasks":{"type":"boolean"}`)
}

func (t *getTaskTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		TaskID          string `json:"taskId"`
		IncludeSubtasks bool   `json:"includeSubtasks"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	ent, err := t.s.pool.GetEntity(ctx, labelTask, args.TaskID)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	task := taskFromProps(args.TaskID, ent.Properties)

	if !args.IncludeSubtasks {
		return mcp.JSONResult(task)
	}

	rels, err := t.s.pool.GetRelationshipsFor(ctx, labelTask, args.TaskID, "HAS_SUBTASK", "out", 1000)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	subtasks := make([]*Task, 0, len(rels))
	for _, r := range rels {
		subEnt, err := t.s.pool.GetEntity(ctx, labelTask, r.ToID)
		if err == nil {
			subtasks = append(subtasks, taskFromProps(r.ToID, subEnt.Properties))
		}
	}
	return mcp.JSONResult(map[string]any{"task": task, "subtasks": subtasks})
}

// --- update_task ---

type updateTaskTool struct{ s *Server }

func (t *updateTaskTool) Name() string        { return "update_task" }
func (t *updateTaskTool) Description() string { return "Merge fields into an existing task." }
func (t *updateTaskTool) InputSchema() json.RawMessage {
	return schema([]string{"taskId"},
		`"taskId":{"type":"string"},"title":{"type":"string"},"description":{"type":"string"},"status":{"type":"string"},"priority":{"type":"string"},"assignee":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}},"dueDate":{"type":"string"},"progress":{"type":"integer"}`)
}

func (t *updateTaskTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var raw map[string]any
	if err := json.Unmarshal(params, &raw); err != nil {
		return errEnvelope(t.Name(), taxonomy.Wrap(taxonomy.InvalidInput, "invalid arguments", err))
	}
	taskID, _ := raw["taskId"].(string)
	if taskID == "" {
		return errEnvelope(t.Name(), taxonomy.New(taxonomy.InvalidInput, "taskId is required"))
	}
	delete(raw, "taskId")

	gctx := &guards.GuardContext{TaskID: taskID}
	if v, ok := raw["status"].(string); ok {
		gctx.TargetStatus = v
	}
	if v, ok := raw["priority"].(string); ok {
		gctx.Priority = v
	}
	if v, ok := raw["progress"].(float64); ok {
		p := int(v)
		gctx.Progress = &p
	}
	if err := runGuards(ctx, t.s.guards, gctx, guards.TaskUpdateGuards); err != nil {
		return errEnvelope(t.Name(), err)
	}

	props := renameUpdateFields(raw)
	if status, ok := props["status"].(string); ok && status == StatusCompleted {
		props["progress"] = 100
		props["completed_at"] = time.Now().UTC().Format(time.RFC3339)
	}

	ent, err := t.s.pool.UpdateEntity(ctx, labelTask, taskID, props)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(taskFromProps(taskID, ent.Properties))
}

func renameUpdateFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	rename := map[string]string{"dueDate": "due_date"}
	for k, v := range in {
		if mapped, ok := rename[k]; ok {
			out[mapped] = v
			continue
		}
		out[k] = v
	}
	return out
}

// --- complete_task ---

type completeTaskTool struct{ s *Server }

func (t *completeTaskTool) Name() string { return "complete_task" }
func (t *completeTaskTool) Description() string {
	return "Shortcut equivalent to update(status=completed)."
}
func (t *completeTaskTool) InputSchema() json.RawMessage {
	return schema([]string{"taskId"}, `"taskId":{"type":"string"},"result":{"type":"object"}`)
}

func (t *completeTaskTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		TaskID string         `json:"taskId"`
		Result map[string]any `json:"result"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	current, err := t.s.pool.GetEntity(ctx, labelTask, args.TaskID)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	status, _ := current.Properties["status"].(string)
	gctx := &guards.GuardContext{TaskID: args.TaskID, TaskStatus: status}
	if err := runGuards(ctx, t.s.guards, gctx, guards.TaskCompleteGuards); err != nil {
		return errEnvelope(t.Name(), err)
	}

	props := map[string]any{
		"status": StatusCompleted, "progress": 100,
		"completed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if args.Result != nil {
		if b, err := json.Marshal(args.Result); err == nil {
			props["result"] = string(b)
		}
	}

	ent, err := t.s.pool.UpdateEntity(ctx, labelTask, args.TaskID, props)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(taskFromProps(args.TaskID, ent.Properties))
}

// --- delete_task ---

type deleteTaskTool struct{ s *Server }

func (t *deleteTaskTool) Name() string { return "delete_task" }
func (t *deleteTaskTool) Description() string {
	return "Delete a task, optionally cascading to its subtasks."
}
func (t *deleteTaskTool) InputSchema() json.RawMessage {
	return schema([]string{"taskId"}, `"taskId":{"type":"string"},"deleteSubtasks":{"type":"boolean"}`)
}

func (t *deleteTaskTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		TaskID         string `json:"taskId"`
		DeleteSubtasks bool   `json:"deleteSubtasks"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	if args.DeleteSubtasks {
		rels, err := t.s.pool.GetRelationshipsFor(ctx, labelTask, args.TaskID, "HAS_SUBTASK", "out", 1000)
		if err != nil {
			return errEnvelope(t.Name(), err)
		}
		for _, r := range rels {
			if _, err := t.s.pool.DeleteEntity(ctx, labelTask, r.ToID); err != nil {
				return errEnvelope(t.Name(), err)
			}
		}
	}

	deleted, err := t.s.pool.DeleteEntity(ctx, labelTask, args.TaskID)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"deleted": deleted})
}

// --- list_tasks ---

type listTasksTool struct{ s *Server }

func (t *listTasksTool) Name() string { return "list_tasks" }
func (t *listTasksTool) Description() string {
	return "List tasks with equality filters plus any-match tag filtering."
}
func (t *listTasksTool) InputSchema() json.RawMessage {
	return schema(nil,
		`"status":{"type":"string"},"priority":{"type":"string"},"assignee":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}},"parentTaskId":{"type":"string"},"limit":{"type":"integer"}`)
}

func (t *listTasksTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		Status       string   `json:"status"`
		Priority     string   `json:"priority"`
		Assignee     string   `json:"assignee"`
		Tags         []string `json:"tags"`
		ParentTaskID string   `json:"parentTaskId"`
		Limit        int      `json:"limit"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	match := map[string]any{}
	if args.Status != "" {
		match["status"] = args.Status
	}
	if args.Priority != "" {
		match["priority"] = args.Priority
	}
	if args.Assignee != "" {
		match["assignee"] = args.Assignee
	}

	limit := args.Limit
	if limit <= 0 {
		limit = 200
	}
	ents, err := t.s.pool.FindEntities(ctx, labelTask, match, limit)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	var parentChildren map[string]bool
	if args.ParentTaskID != "" {
		rels, err := t.s.pool.GetRelationshipsFor(ctx, labelTask, args.ParentTaskID, "HAS_SUBTASK", "out", 1000)
		if err != nil {
			return errEnvelope(t.Name(), err)
		}
		parentChildren = make(map[string]bool, len(rels))
		for _, r := range rels {
			parentChildren[r.ToID] = true
		}
	}

	tasks := make([]*Task, 0, len(ents))
	for _, e := range ents {
		task := taskFromProps(e.ID, e.Properties)
		if !anyTagMatch(task.Tags, args.Tags) {
			continue
		}
		if parentChildren != nil && !parentChildren[task.ID] {
			continue
		}
		tasks = append(tasks, task)
	}
	return mcp.JSONResult(map[string]any{"tasks": tasks})
}

// --- add_subtask ---

type addSubtaskTool struct{ s *Server }

func (t *addSubtaskTool) Name() string { return "add_subtask" }
func (t *addSubtaskTool) Description() string {
	return "Create a task and attach it as a subtask of a parent."
}
func (t *addSubtaskTool) InputSchema() json.RawMessage {
	return schema([]string{"parentTaskId", "title"}, `"parentTaskId":{"type":"string"},"title":{"type":"string"},"description":{"type":"string"}`)
}

func (t *addSubtaskTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		ParentTaskID string `json:"parentTaskId"`
		Title        string `json:"title"`
		Description  string `json:"description"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	now := time.Now().UTC()
	task := &Task{ID: newTaskID(), Title: args.Title, Description: args.Description, Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	props := map[string]any{"title": task.Title, "description": task.Description, "status": task.Status, "progress": 0}

	if _, err := t.s.pool.CreateEntity(ctx, labelTask, task.ID, props); err != nil {
		return errEnvelope(t.Name(), err)
	}
	if _, err := t.s.pool.CreateRelationship(ctx, "HAS_SUBTASK", labelTask, args.ParentTaskID, labelTask, task.ID, nil); err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"taskId": task.ID})
}

// --- set_dependency ---

type setDependencyTool struct{ s *Server }

func (t *setDependencyTool) Name() string { return "set_dependency" }
func (t *setDependencyTool) Description() string {
	return "Record a typed dependency edge between two tasks."
}
func (t *setDependencyTool) InputSchema() json.RawMessage {
	return schema([]string{"taskId", "dependsOnId", "type"},
		`"taskId":{"type":"string"},"dependsOnId":{"type":"string"},"type":{"type":"string","enum":["MUST_COMPLETE_BEFORE","SHOULD_COMPLETE_BEFORE","BLOCKS"]}`)
}

func (t *setDependencyTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		TaskID      string `json:"taskId"`
		DependsOnID string `json:"dependsOnId"`
		Type        string `json:"type"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}
	gctx := &guards.GuardContext{TaskID: args.TaskID, DependsOnID: args.DependsOnID, DependencyType: args.Type}
	if err := runGuards(ctx, t.s.guards, gctx, guards.TaskDependencyGuards); err != nil {
		return errEnvelope(t.Name(), err)
	}

	if _, err := t.s.pool.CreateRelationship(ctx, args.Type, labelTask, args.TaskID, labelTask, args.DependsOnID, nil); err != nil {
		return errEnvelope(t.Name(), err)
	}
	return mcp.JSONResult(map[string]any{"success": true})
}

// --- get_dependencies ---

type getDependenciesTool struct{ s *Server }

func (t *getDependenciesTool) Name() string { return "get_dependencies" }
func (t *getDependenciesTool) Description() string {
	return "List a task's dependency edges in the given direction."
}
func (t *getDependenciesTool) InputSchema() json.RawMessage {
	return schema([]string{"taskId"}, `"taskId":{"type":"string"},"direction":{"type":"string","enum":["in","out","both"]}`)
}

func (t *getDependenciesTool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, err := decode[struct {
		TaskID    string `json:"taskId"`
		Direction string `json:"direction"`
	}](params)
	if err != nil {
		return errEnvelope(t.Name(), err)
	}

	var deps []map[string]any
	for depType := range dependencyTypes {
		rels, err := t.s.pool.GetRelationshipsFor(ctx, labelTask, args.TaskID, depType, args.Direction, 1000)
		if err != nil {
			return errEnvelope(t.Name(), err)
		}
		for _, r := range rels {
			deps = append(deps, map[string]any{"type": depType, "fromId": r.FromID, "toId": r.ToID})
		}
	}
	return mcp.JSONResult(map[string]any{"dependencies": deps})
}

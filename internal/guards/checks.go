package guards

import (
	"context"
	"fmt"

	"github.com/emergent-company/memoryhub/internal/validation"
)

// --- Task Guards ---

// TaskNotTerminal blocks mutations of a task that is already completed or
// cancelled, except a direct status update which may re-open it.
var TaskNotTerminal = NewGuardFunc("task_not_terminal", func(_ context.Context, gctx *GuardContext) Result {
	if !validation.TerminalTaskStatus(gctx.TaskStatus) {
		return Pass("task_not_terminal")
	}
	return Fail("task_not_terminal", HardBlock,
		fmt.Sprintf("Task %s is %s and cannot be completed again.", gctx.TaskID, gctx.TaskStatus),
		"Use update_task to change a terminal task's status explicitly.",
	)
})

// KnownStatus rejects a status outside the task vocabulary.
var KnownStatus = NewGuardFunc("known_status", func(_ context.Context, gctx *GuardContext) Result {
	if gctx.TargetStatus == "" || validation.KnownTaskStatus(gctx.TargetStatus) {
		return Pass("known_status")
	}
	return Fail("known_status", HardBlock,
		"Unknown task status: "+gctx.TargetStatus,
		"Use one of: pending, in_progress, blocked, deferred, completed, cancelled.",
	)
})

// KnownPriority rejects a priority outside the vocabulary.
var KnownPriority = NewGuardFunc("known_priority", func(_ context.Context, gctx *GuardContext) Result {
	if gctx.Priority == "" || validation.KnownPriority(gctx.Priority) {
		return Pass("known_priority")
	}
	return Fail("known_priority", HardBlock,
		"Unknown task priority: "+gctx.Priority,
		"Use one of: critical, high, medium, low.",
	)
})

// ProgressInRange rejects progress outside [0,100].
var ProgressInRange = NewGuardFunc("progress_in_range", func(_ context.Context, gctx *GuardContext) Result {
	if gctx.Progress == nil || (*gctx.Progress >= 0 && *gctx.Progress <= 100) {
		return Pass("progress_in_range")
	}
	return Fail("progress_in_range", HardBlock,
		fmt.Sprintf("Progress must be between 0 and 100, got %d.", *gctx.Progress),
		"",
	)
})

// KnownDependencyType rejects dependency edges outside the typed set.
var KnownDependencyType = NewGuardFunc("known_dependency_type", func(_ context.Context, gctx *GuardContext) Result {
	if validation.KnownDependencyType(gctx.DependencyType) {
		return Pass("known_dependency_type")
	}
	return Fail("known_dependency_type", HardBlock,
		"Unknown dependency type: "+gctx.DependencyType,
		"Use one of: MUST_COMPLETE_BEFORE, SHOULD_COMPLETE_BEFORE, BLOCKS.",
	)
})

// NoSelfDependency blocks a task from depending on itself.
var NoSelfDependency = NewGuardFunc("no_self_dependency", func(_ context.Context, gctx *GuardContext) Result {
	if gctx.TaskID == "" || gctx.TaskID != gctx.DependsOnID {
		return Pass("no_self_dependency")
	}
	return Fail("no_self_dependency", HardBlock,
		"A task cannot depend on itself.",
		"",
	)
})

// --- Chain Guards ---

// ChainNotTerminal blocks step appends on completed or failed chains.
var ChainNotTerminal = NewGuardFunc("chain_not_terminal", func(_ context.Context, gctx *GuardContext) Result {
	if !validation.TerminalChainStatus(gctx.ChainStatus) {
		return Pass("chain_not_terminal")
	}
	return Fail("chain_not_terminal", HardBlock,
		"Chain is "+gctx.ChainStatus+"; steps are immutable once a chain is terminal.",
		"Branch the chain to continue reasoning from its steps.",
	)
})

// KnownStepType rejects a step type outside the vocabulary.
var KnownStepType = NewGuardFunc("known_step_type", func(_ context.Context, gctx *GuardContext) Result {
	if gctx.StepType == "" || validation.KnownStepType(gctx.StepType) {
		return Pass("known_step_type")
	}
	return Fail("known_step_type", HardBlock,
		"Unknown step type: "+gctx.StepType,
		"Use one of: observation, analysis, inference, conclusion, question, hypothesis.",
	)
})

// --- Guard Sets ---

// TaskUpdateGuards run before a task's fields are merged.
var TaskUpdateGuards = []Guard{KnownStatus, KnownPriority, ProgressInRange}

// TaskCompleteGuards run before the complete() shortcut.
var TaskCompleteGuards = []Guard{TaskNotTerminal}

// TaskDependencyGuards run before a dependency edge is written.
var TaskDependencyGuards = []Guard{KnownDependencyType, NoSelfDependency}

// ChainStepGuards run before a step is appended.
var ChainStepGuards = []Guard{ChainNotTerminal, KnownStepType}

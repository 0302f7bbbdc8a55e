package validation

// Task statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusBlocked    = "blocked"
	StatusDeferred   = "deferred"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Chain statuses.
const (
	ChainInProgress = "in_progress"
	ChainCompleted  = "completed"
	ChainFailed     = "failed"
)

// Task priorities.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

var taskStatuses = map[string]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusBlocked:    true,
	StatusDeferred:   true,
	StatusCompleted:  true,
	StatusCancelled:  true,
}

var priorities = map[string]bool{
	PriorityCritical: true,
	PriorityHigh:     true,
	PriorityMedium:   true,
	PriorityLow:      true,
}

var stepTypes = map[string]bool{
	"observation": true,
	"analysis":    true,
	"inference":   true,
	"conclusion":  true,
	"question":    true,
	"hypothesis":  true,
}

var dependencyTypes = map[string]bool{
	"MUST_COMPLETE_BEFORE":   true,
	"SHOULD_COMPLETE_BEFORE": true,
	"BLOCKS":                 true,
}

// KnownTaskStatus reports whether s is a recognized task status.
func KnownTaskStatus(s string) bool { return taskStatuses[s] }

// KnownPriority reports whether s is a recognized task priority.
func KnownPriority(s string) bool { return priorities[s] }

// KnownStepType reports whether s is a recognized reasoning step type.
func KnownStepType(s string) bool { return stepTypes[s] }

// KnownDependencyType reports whether s is a recognized dependency edge type.
func KnownDependencyType(s string) bool { return dependencyTypes[s] }

// TerminalTaskStatus reports whether s is completed or cancelled.
func TerminalTaskStatus(s string) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// TerminalChainStatus reports whether s is completed or failed.
func TerminalChainStatus(s string) bool {
	return s == ChainCompleted || s == ChainFailed
}

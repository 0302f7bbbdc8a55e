package guards

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunner_HardBlock(t *testing.T) {
	r := NewRunner()
	gctx := &GuardContext{TaskID: "t1", TaskStatus: "completed"}

	outcome := r.Run(context.Background(), gctx, TaskCompleteGuards)
	assert.True(t, outcome.Blocked)
	assert.Len(t, outcome.HardBlocks(), 1)
	assert.Contains(t, outcome.FormatBlockMessage(), "task_not_terminal")
}

func TestRunner_Pass(t *testing.T) {
	r := NewRunner()
	gctx := &GuardContext{TaskID: "t1", TaskStatus: "in_progress"}

	outcome := r.Run(context.Background(), gctx, TaskCompleteGuards)
	assert.False(t, outcome.Blocked)
	assert.Empty(t, outcome.FormatBlockMessage())
}

func TestTaskUpdateGuards(t *testing.T) {
	r := NewRunner()

	t.Run("unknown status blocks", func(t *testing.T) {
		outcome := r.Run(context.Background(), &GuardContext{TargetStatus: "done"}, TaskUpdateGuards)
		assert.True(t, outcome.Blocked)
	})

	t.Run("unknown priority blocks", func(t *testing.T) {
		outcome := r.Run(context.Background(), &GuardContext{Priority: "urgent"}, TaskUpdateGuards)
		assert.True(t, outcome.Blocked)
	})

	t.Run("progress out of range blocks", func(t *testing.T) {
		p := 150
		outcome := r.Run(context.Background(), &GuardContext{Progress: &p}, TaskUpdateGuards)
		assert.True(t, outcome.Blocked)
	})

	t.Run("empty fields pass", func(t *testing.T) {
		outcome := r.Run(context.Background(), &GuardContext{}, TaskUpdateGuards)
		assert.False(t, outcome.Blocked)
	})
}

func TestTaskDependencyGuards(t *testing.T) {
	r := NewRunner()

	t.Run("self dependency blocks", func(t *testing.T) {
		gctx := &GuardContext{TaskID: "t1", DependsOnID: "t1", DependencyType: "BLOCKS"}
		outcome := r.Run(context.Background(), gctx, TaskDependencyGuards)
		assert.True(t, outcome.Blocked)
	})

	t.Run("unknown type blocks", func(t *testing.T) {
		gctx := &GuardContext{TaskID: "t1", DependsOnID: "t2", DependencyType: "DEPENDS"}
		outcome := r.Run(context.Background(), gctx, TaskDependencyGuards)
		assert.True(t, outcome.Blocked)
	})

	t.Run("typed edge passes", func(t *testing.T) {
		gctx := &GuardContext{TaskID: "t1", DependsOnID: "t2", DependencyType: "MUST_COMPLETE_BEFORE"}
		outcome := r.Run(context.Background(), gctx, TaskDependencyGuards)
		assert.False(t, outcome.Blocked)
	})
}

func TestChainStepGuards(t *testing.T) {
	r := NewRunner()

	t.Run("terminal chain blocks", func(t *testing.T) {
		gctx := &GuardContext{ChainStatus: "completed", StepType: "analysis"}
		outcome := r.Run(context.Background(), gctx, ChainStepGuards)
		assert.True(t, outcome.Blocked)
	})

	t.Run("unknown step type blocks", func(t *testing.T) {
		gctx := &GuardContext{ChainStatus: "in_progress", StepType: "guess"}
		outcome := r.Run(context.Background(), gctx, ChainStepGuards)
		assert.True(t, outcome.Blocked)
	})

	t.Run("live chain with known type passes", func(t *testing.T) {
		gctx := &GuardContext{ChainStatus: "in_progress", StepType: "hypothesis"}
		outcome := r.Run(context.Background(), gctx, ChainStepGuards)
		assert.False(t, outcome.Blocked)
	})
}

func TestSoftBlockForce(t *testing.T) {
	soft := NewGuardFunc("soft", func(_ context.Context, _ *GuardContext) Result {
		return Fail("soft", SoftBlock, "soft issue", "use force")
	})
	r := NewRunner()

	outcome := r.Run(context.Background(), &GuardContext{}, []Guard{soft})
	assert.True(t, outcome.Blocked)

	outcome = r.Run(context.Background(), &GuardContext{Force: true}, []Guard{soft})
	assert.False(t, outcome.Blocked)
	assert.Len(t, outcome.SoftBlocks(), 1)
}

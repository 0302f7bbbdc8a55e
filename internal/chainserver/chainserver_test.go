package chainserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/notebook"
)

func TestOrderSteps(t *testing.T) {
	steps := []Step{
		{Number: 2, Thought: "second"},
		{Number: 1, Thought: "first"},
	}
	ordered := orderSteps(steps)
	require.Len(t, ordered, 2)
	assert.Equal(t, "first", ordered[0].Thought)
	assert.Equal(t, "second", ordered[1].Thought)
}

func TestChainPropsRoundTrip(t *testing.T) {
	conf := 0.9
	c := &Chain{
		ID:         "chain-1",
		Prompt:     "what is the capital of France?",
		Status:     StatusCompleted,
		Conclusion: "Paris",
		Confidence: &conf,
		Tags:       []string{"geo"},
	}
	props := chainToProps(c)
	back := chainFromProps(c.ID, props)
	assert.Equal(t, c.Prompt, back.Prompt)
	assert.Equal(t, c.Status, back.Status)
	assert.Equal(t, c.Conclusion, back.Conclusion)
	assert.Equal(t, c.Tags, back.Tags)
	require.NotNil(t, back.Confidence)
	assert.InDelta(t, conf, *back.Confidence, 0.0001)
}

func TestStepPropsRoundTrip(t *testing.T) {
	conf := 0.5
	st := Step{Number: 3, Thought: "recall facts", StepType: "analysis", Confidence: &conf, Payload: map[string]any{"k": "v"}}
	props := stepToProps(st)
	back := stepFromProps(props)
	assert.Equal(t, st.Thought, back.Thought)
	assert.Equal(t, st.StepType, back.StepType)
	assert.Equal(t, "v", back.Payload["k"])
}

func TestExportChain(t *testing.T) {
	root := t.TempDir()
	vault, err := notebook.New(config.NotebookConfig{VaultRoot: root, LogsFolder: "logs"})
	require.NoError(t, err)

	s := &Server{vault: vault}
	c := &Chain{
		ID:         "abcdefgh-0000-0000-0000-000000000000",
		Prompt:     "Capital of France?",
		Status:     StatusCompleted,
		Conclusion: "Paris",
		CreatedAt:  time.Now().UTC(),
		Steps: []Step{
			{Number: 1, Thought: "Recall facts", StepType: "analysis"},
			{Number: 2, Thought: "Paris is the capital", StepType: "conclusion"},
		},
	}
	require.NoError(t, exportChain(s, c))

	name := "reasoning-" + time.Now().UTC().Format("2006-01-02") + "-abcdefgh.md"
	fm, body, err := vault.Read(name)
	require.NoError(t, err)
	assert.Equal(t, "completed", fm["status"])
	assert.Equal(t, c.ID, fm["chain_id"])
	assert.Contains(t, body, "Paris")
	assert.Contains(t, body, "Step 1: analysis")
}

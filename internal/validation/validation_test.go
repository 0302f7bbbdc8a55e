package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateChainTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr error
	}{
		{"conclude succeeds", ChainInProgress, ChainCompleted, nil},
		{"fail succeeds", ChainInProgress, ChainFailed, nil},
		{"reopen completed rejected", ChainCompleted, ChainInProgress, ErrInvalidTransition},
		{"flip terminal rejected", ChainCompleted, ChainFailed, ErrInvalidTransition},
		{"same state rejected", ChainInProgress, ChainInProgress, ErrAlreadyInState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChainTransition(tt.from, tt.to)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTaskCompletion(t *testing.T) {
	assert.NoError(t, ValidateTaskCompletion(StatusPending))
	assert.NoError(t, ValidateTaskCompletion(StatusInProgress))
	assert.ErrorIs(t, ValidateTaskCompletion(StatusCompleted), ErrTerminalState)
	assert.ErrorIs(t, ValidateTaskCompletion(StatusCancelled), ErrTerminalState)
}

func TestVocabularies(t *testing.T) {
	assert.True(t, KnownTaskStatus("deferred"))
	assert.False(t, KnownTaskStatus("done"))

	assert.True(t, KnownPriority("critical"))
	assert.False(t, KnownPriority("urgent"))

	assert.True(t, KnownStepType("observation"))
	assert.False(t, KnownStepType("guess"))

	assert.True(t, KnownDependencyType("SHOULD_COMPLETE_BEFORE"))
	assert.False(t, KnownDependencyType("NEEDS"))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, TerminalTaskStatus(StatusCompleted))
	assert.True(t, TerminalTaskStatus(StatusCancelled))
	assert.False(t, TerminalTaskStatus(StatusBlocked))

	assert.True(t, TerminalChainStatus(ChainFailed))
	assert.False(t, TerminalChainStatus(ChainInProgress))
}

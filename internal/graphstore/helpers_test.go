package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLabel(t *testing.T) {
	t.Run("valid identifier passes through", func(t *testing.T) {
		assert.Equal(t, "Task", escapeLabel("Task"))
		assert.Equal(t, "reasoning_chain", escapeLabel("reasoning_chain"))
	})

	t.Run("rejects cypher injection attempts", func(t *testing.T) {
		assert.Equal(t, "Entity", escapeLabel("Task) DETACH DELETE (n"))
		assert.Equal(t, "Entity", escapeLabel("Task {x:1}"))
		assert.Equal(t, "Entity", escapeLabel(""))
	})
}

func TestEscapeIdent(t *testing.T) {
	assert.Equal(t, "status", escapeIdent("status"))
	assert.Equal(t, "id", escapeIdent("status = 'x' OR 1=1"))
}

func TestEscapeRelType(t *testing.T) {
	assert.Equal(t, "MUST_COMPLETE_BEFORE", escapeRelType("MUST_COMPLETE_BEFORE"))
	assert.Equal(t, "RELATED_TO", escapeRelType("bad rel; DROP"))
	assert.Equal(t, "", escapeRelType(""))
}

func TestWhereClause(t *testing.T) {
	t.Run("empty match", func(t *testing.T) {
		where, params := whereClause("n", nil)
		assert.Equal(t, "", where)
		assert.Empty(t, params)
	})

	t.Run("single field", func(t *testing.T) {
		where, params := whereClause("n", map[string]any{"status": "active"})
		assert.Equal(t, "WHERE n.status = $m0", where)
		assert.Equal(t, "active", params["m0"])
	})
}

func TestRelPattern(t *testing.T) {
	assert.Equal(t, "-[r:BLOCKS]->", relPattern("BLOCKS", "out"))
	assert.Equal(t, "<-[r:BLOCKS]-", relPattern("BLOCKS", "in"))
	assert.Equal(t, "-[r:BLOCKS]-", relPattern("BLOCKS", ""))
	assert.Equal(t, "-[r]->", relPattern("", "out"))
}

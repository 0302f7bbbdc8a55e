package notebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/memoryhub/internal/config"
)

// Round-trip law: parsing a rendered frontmatter block yields the original
// map for string, number, and list-of-string values.
func TestFrontmatterRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		fm   map[string]any
	}{
		{"strings", map[string]any{"title": "Plan", "status": "completed"}},
		{"numbers", map[string]any{"confidence": 0.85, "steps": 3}},
		{"lists", map[string]any{"tags": []string{"alpha", "beta"}}},
		{"mixed", map[string]any{
			"title": "Reasoning chain abcdefgh",
			"tags":  []string{"branch", "analysis"},
			"count": 2,
		}},
	}

	vault, err := New(config.NotebookConfig{VaultRoot: t.TempDir(), LogsFolder: "logs"})
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, vault.Write("note.md", "body", tt.fm))
			got, body, err := vault.Read("note.md")
			require.NoError(t, err)
			assert.Equal(t, "body", body)

			for k, want := range tt.fm {
				switch w := want.(type) {
				case []string:
					list, ok := got[k].([]any)
					require.True(t, ok, k)
					require.Len(t, list, len(w))
					for i, item := range w {
						assert.Equal(t, item, list[i])
					}
				case int:
					assert.EqualValues(t, w, got[k], k)
				default:
					assert.EqualValues(t, w, got[k], k)
				}
			}
		})
	}
}

// The same frontmatter written twice must read back identically, since keys
// are rendered in sorted order so exports are deterministic.
func TestFrontmatterKeyOrderDeterministic(t *testing.T) {
	vault, err := New(config.NotebookConfig{VaultRoot: t.TempDir(), LogsFolder: "logs"})
	require.NoError(t, err)

	fm := map[string]any{"title": "x", "chain_id": "y", "status": "z"}
	require.NoError(t, vault.Write("a.md", "body", fm))
	first, _, err := vault.Read("a.md")
	require.NoError(t, err)

	require.NoError(t, vault.Write("b.md", "body", fm))
	second, _, err := vault.Read("b.md")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

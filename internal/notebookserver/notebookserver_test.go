package notebookserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/notebook"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	vault, err := notebook.New(config.NotebookConfig{VaultRoot: t.TempDir(), LogsFolder: "logs"})
	require.NoError(t, err)
	return New(vault, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func call(t *testing.T, s *Server, tool, args string) map[string]any {
	t.Helper()
	tl := s.Registry().Get(tool)
	require.NotNil(t, tl, tool)
	res, err := tl.Execute(context.Background(), json.RawMessage(args))
	require.NoError(t, err)
	require.False(t, res.IsError, res.Content[0].Text)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	return out
}

func TestWriteAndReadNote(t *testing.T) {
	s := testServer(t)

	call(t, s, "write_note", `{"name":"plan.md","body":"Do the thing.","frontmatter":{"topic":"plans"}}`)
	out := call(t, s, "read_note", `{"name":"plan.md"}`)

	assert.Equal(t, "Do the thing.", out["body"])
	fm, ok := out["frontmatter"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "plans", fm["topic"])
}

func TestAppendNote(t *testing.T) {
	s := testServer(t)
	call(t, s, "write_note", `{"name":"log.md","body":"first"}`)
	call(t, s, "append_note", `{"name":"log.md","body":"second"}`)

	out := call(t, s, "read_note", `{"name":"log.md"}`)
	assert.Contains(t, out["body"], "first")
	assert.Contains(t, out["body"], "second")
}

func TestReadMissingNote(t *testing.T) {
	s := testServer(t)
	tl := s.Registry().Get("read_note")
	res, err := tl.Execute(context.Background(), json.RawMessage(`{"name":"ghost.md"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "not_found")
}

func TestListAndSearchNotes(t *testing.T) {
	s := testServer(t)
	call(t, s, "write_note", `{"name":"alpha.md","body":"entity graph"}`)
	call(t, s, "write_note", `{"name":"beta.md","body":"model routing"}`)

	out := call(t, s, "list_notes", `{"limit":10}`)
	notes, ok := out["notes"].([]any)
	require.True(t, ok)
	assert.Len(t, notes, 2)

	out = call(t, s, "search_notes", `{"query":"alpha"}`)
	notes = out["notes"].([]any)
	assert.Len(t, notes, 1)

	out = call(t, s, "search_notes", `{"query":"routing","searchBody":true}`)
	notes = out["notes"].([]any)
	assert.Len(t, notes, 1)
}

func TestTodayLogResource(t *testing.T) {
	s := testServer(t)

	defs := s.Registry().ListResources()
	require.Len(t, defs, 1)
	assert.Equal(t, "notebook://log/today", defs[0].URI)

	res := s.Registry().GetResource("notebook://log/today")
	require.NotNil(t, res)

	// Empty vault: resource reads as empty, not as an error.
	content, err := res.Read()
	require.NoError(t, err)
	require.Len(t, content.Contents, 1)
	assert.Empty(t, content.Contents[0].Text)
}

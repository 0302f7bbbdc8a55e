package modelrouter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

// fakeRuntime serves /api/tags and /api/generate the way the local model
// runtime does, recording the model each generate request asked for.
func fakeRuntime(t *testing.T, installed []string) (*Router, *[]string) {
	t.Helper()

	var served []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		models := make([]map[string]any, 0, len(installed))
		for _, name := range installed {
			models = append(models, map[string]any{"name": name, "size": 1, "digest": "d", "modified_at": "2026-01-01T00:00:00Z"})
		}
		json.NewEncoder(w).Encode(map[string]any{"models": models})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		model, _ := body["model"].(string)
		served = append(served, model)
		json.NewEncoder(w).Encode(map[string]any{"model": model, "response": "Paris", "eval_count": 5})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	cfg := config.ModelConfig{
		Host: u.Hostname(), Port: u.Port(), TimeoutMs: 2000, Retries: 0,
		InventoryTTLSec: 300, Fallback: "llama-fallback",
		ClassDefaults: map[string]string{"reasoning": "qwq-reasoning"},
	}
	return New(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil))), &served
}

func TestRoute_PrimaryAvailable(t *testing.T) {
	r, served := fakeRuntime(t, []string{"qwq-reasoning", "llama-fallback"})

	res, err := r.Route(context.Background(), "reasoning", "", "Capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "qwq-reasoning", res.Model)
	assert.False(t, res.Downgraded)
	assert.Equal(t, []string{"qwq-reasoning"}, *served)
}

func TestRoute_FallbackWhenPrimaryMissing(t *testing.T) {
	r, served := fakeRuntime(t, []string{"llama-fallback"})

	res, err := r.Route(context.Background(), "reasoning", "", "Capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "llama-fallback", res.Model)
	assert.True(t, res.Downgraded)
	assert.Equal(t, "Paris", res.Response["response"])
	assert.Equal(t, []string{"llama-fallback"}, *served)
}

func TestRoute_ExplicitModelWins(t *testing.T) {
	r, served := fakeRuntime(t, []string{"qwq-reasoning", "llama-fallback", "custom"})

	res, err := r.Route(context.Background(), "reasoning", "custom", "hi")
	require.NoError(t, err)
	assert.Equal(t, "custom", res.Model)
	assert.Equal(t, []string{"custom"}, *served)
}

func TestRoute_RuntimeDown(t *testing.T) {
	cfg := config.ModelConfig{
		Host: "127.0.0.1", Port: "1", TimeoutMs: 200, Retries: 1,
		InventoryTTLSec: 300, Fallback: "llama-fallback",
	}
	r := New(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	_, err := r.Route(context.Background(), "reasoning", "", "hi")
	require.Error(t, err)
	assert.Equal(t, taxonomy.BackendUnavailable, taxonomy.KindOf(err))
}

func TestAvailable_MatchesTags(t *testing.T) {
	r, _ := fakeRuntime(t, []string{"llama-chat:latest"})

	ok, err := r.available(context.Background(), "llama-chat")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.available(context.Background(), "missing-model")
	require.NoError(t, err)
	assert.False(t, ok)
}

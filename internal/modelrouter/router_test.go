package modelrouter

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

func testRouter() *Router {
	cfg := config.ModelConfig{
		Host:            "localhost",
		Port:            "11434",
		TimeoutMs:       1000,
		Retries:         2,
		InventoryTTLSec: 60,
		Fallback:        "llama-fallback",
		ClassDefaults: map[string]string{
			"coding": "qwen-coder",
		},
	}
	return New(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestModelFor(t *testing.T) {
	r := testRouter()

	t.Run("known class", func(t *testing.T) {
		assert.Equal(t, "qwen-coder", r.ModelFor("coding"))
	})

	t.Run("unknown class falls back", func(t *testing.T) {
		assert.Equal(t, "llama-fallback", r.ModelFor("unknown-class"))
	})
}

func TestSetDefault(t *testing.T) {
	t.Run("per-class override", func(t *testing.T) {
		r := testRouter()
		r.SetDefault("coding", "deepseek-coder")
		assert.Equal(t, "deepseek-coder", r.ModelFor("coding"))
	})

	t.Run("empty class replaces fallback", func(t *testing.T) {
		r := testRouter()
		r.SetDefault("", "new-fallback")
		assert.Equal(t, "new-fallback", r.ModelFor("unknown-class"))
	})
}

func TestShouldRetry(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.False(t, shouldRetry(nil))
	})

	t.Run("context deadline exceeded", func(t *testing.T) {
		assert.True(t, shouldRetry(context.DeadlineExceeded))
	})

	t.Run("network error", func(t *testing.T) {
		assert.True(t, shouldRetry(&net.DNSError{IsTimeout: true}))
	})

	t.Run("invalid input is not retryable", func(t *testing.T) {
		assert.False(t, shouldRetry(taxonomy.New(taxonomy.InvalidInput, "bad request")))
	})

	t.Run("open circuit breaker is not retryable", func(t *testing.T) {
		assert.False(t, shouldRetry(gobreaker.ErrOpenState))
	})

	t.Run("unrecognized errors are not retried", func(t *testing.T) {
		assert.False(t, shouldRetry(errors.New("boom")))
	})
}

func TestTranslateErr(t *testing.T) {
	t.Run("passes through taxonomy errors", func(t *testing.T) {
		orig := taxonomy.New(taxonomy.InvalidInput, "bad")
		got := translateErr("op", orig)
		assert.Equal(t, taxonomy.InvalidInput, taxonomy.KindOf(got))
	})

	t.Run("circuit open maps to backend unavailable", func(t *testing.T) {
		got := translateErr("op", gobreaker.ErrOpenState)
		assert.Equal(t, taxonomy.BackendUnavailable, taxonomy.KindOf(got))
	})

	t.Run("deadline exceeded maps to timeout", func(t *testing.T) {
		got := translateErr("op", context.DeadlineExceeded)
		assert.Equal(t, taxonomy.Timeout, taxonomy.KindOf(got))
	})

	t.Run("unrecognized error maps to backend unavailable", func(t *testing.T) {
		got := translateErr("op", errors.New("connection refused"))
		assert.Equal(t, taxonomy.BackendUnavailable, taxonomy.KindOf(got))
	})
}

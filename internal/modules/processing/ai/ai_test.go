package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	appcfg "github.com/codeverdict/core/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	calls atomic.Int32
	errs  []error
	text  string
}

func (s *scriptedGenerator) Name() string { return "scripted" }

func (s *scriptedGenerator) Generate(context.Context, string, string) (string, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	return s.text, nil
}

func TestRetry(t *testing.T) {
	transient := errors.New("503")

	t.Run("recovers after transient failures", func(t *testing.T) {
		g := &scriptedGenerator{errs: []error{transient, transient}, text: "ok"}
		out, err := Retry(3, time.Millisecond, nil)(g).Generate(context.Background(), "s", "u")
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, int32(3), g.calls.Load())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		g := &scriptedGenerator{errs: []error{transient, transient, transient}}
		_, err := Retry(2, time.Millisecond, nil)(g).Generate(context.Background(), "s", "u")
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, int32(2), g.calls.Load())
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		g := &scriptedGenerator{errs: []error{Permanent(errors.New("bad key"))}}
		_, err := Retry(5, time.Millisecond, nil)(g).Generate(context.Background(), "s", "u")
		assert.True(t, IsPermanent(err))
		assert.Equal(t, int32(1), g.calls.Load())
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		g := &scriptedGenerator{errs: []error{transient, transient}}
		_, err := Retry(3, time.Hour, nil)(g).Generate(ctx, "s", "u")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	g := &scriptedGenerator{text: "x"}
	assert.Same(t, Generator(g), RateLimit(0, 0)(g))

	limited := RateLimit(1000, 2)(g)
	for i := 0; i < 3; i++ {
		_, err := limited.Generate(context.Background(), "", "")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), g.calls.Load())
}

func TestOpenAICompatible(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"authenticity_score\":70}"}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAICompatible(srv.URL+"/v1/", "sk-test", "local-model", 256, srv.Client())
	out, err := g.Generate(context.Background(), "system text", "user text")
	require.NoError(t, err)
	assert.Equal(t, `{"authenticity_score":70}`, out)
	assert.Equal(t, "local-model", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user text", got.Messages[1].Content)
}

func TestOpenAICompatibleErrors(t *testing.T) {
	status := http.StatusUnauthorized
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
	}))
	defer srv.Close()
	g := NewOpenAICompatible(srv.URL, "", "m", 0, srv.Client())

	_, err := g.Generate(context.Background(), "", "u")
	assert.True(t, IsPermanent(err))

	status = http.StatusServiceUnavailable
	_, err = g.Generate(context.Background(), "", "u")
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestNewRejectsMissingKey(t *testing.T) {
	for _, provider := range []string{appcfg.AIProviderGemini, appcfg.AIProviderOpenAI, appcfg.AIProviderAnthropic} {
		t.Run(provider, func(t *testing.T) {
			_, err := New(context.Background(), appcfg.AIConfig{Provider: provider, MaxAttempts: 1}, nil)
			assert.ErrorIs(t, err, ErrMissingAPIKey)
		})
	}
	_, err := New(context.Background(), appcfg.AIConfig{Provider: "hal9000"}, nil)
	assert.Error(t, err)
}

func TestNormalizeEndpoints(t *testing.T) {
	assert.Equal(t, "https://api.example.com/v1", normalizeOpenAIBaseURL("https://api.example.com"))
	assert.Equal(t, "https://api.example.com/v1", normalizeOpenAIBaseURL("https://api.example.com/v1/"))
	assert.Equal(t, "http://localhost:11434", normalizeOpenAICompatibleEndpoint("http://localhost:11434/v1"))
	assert.Equal(t, "https://api.openai.com", normalizeOpenAICompatibleEndpoint(""))
}

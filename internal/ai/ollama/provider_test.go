package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reviewreplai/reviewrepl/internal/ai"
	"github.com/reviewreplai/reviewrepl/internal/ai/ollama"
	"github.com/reviewreplai/reviewrepl/internal/ai/provider"
	"github.com/reviewreplai/reviewrepl/internal/config"
	"github.com/reviewreplai/reviewrepl/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3", body["model"])
		assert.Equal(t, false, body["stream"])

		w.Write([]byte(`{
			"model": "llama3",
			"message": {"role": "assistant", "content": "We appreciate it."},
			"prompt_eval_count": 20,
			"eval_count": 5
		}`))
	}))
	defer ts.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: ts.URL, Model: "llama3"}, provider.Options{Timeout: 5 * time.Second})
	res, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "Reply"})
	require.NoError(t, err)
	assert.Equal(t, "We appreciate it.", res.Text)
	assert.Equal(t, models.TokenUsage{InputTokens: 20, OutputTokens: 5}, res.Usage)
}

func TestComplete_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: ts.URL, Model: "llama3"}, provider.Options{Timeout: 5 * time.Second})
	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "Reply"})
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestComplete_EmptyMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"model": "llama3", "message": {"content": "   "}}`))
	}))
	defer ts.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: ts.URL, Model: "llama3"}, provider.Options{Timeout: 5 * time.Second})
	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "Reply"})
	assert.ErrorIs(t, err, ai.ErrInvalidResponse)
}

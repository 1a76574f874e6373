package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/chainrag/pkg/llm"
	"github.com/kart-io/chainrag/pkg/utils/json"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewProviderWithConfig(&Config{
		BaseURL:    srv.URL + "/",
		EmbedModel: "nomic-embed-text",
		ChatModel:  "deepseek-r1:7b",
		Timeout:    5 * time.Second,
	})
}

func TestNewProviderFromMap(t *testing.T) {
	p, err := llm.NewChatProvider(ProviderName, map[string]any{
		"base_url":   "http://ollama:11434",
		"chat_model": "deepseek-r1:14b",
		"timeout":    30 * time.Second,
	})
	require.NoError(t, err)

	op := p.(*Provider)
	assert.Equal(t, "http://ollama:11434", op.config.BaseURL)
	assert.Equal(t, "deepseek-r1:14b", op.config.ChatModel)
	assert.Equal(t, "nomic-embed-text", op.config.EmbedModel)
	assert.Equal(t, 30*time.Second, op.config.Timeout)
}

func TestGenerate(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-r1:1.5b", req.Model)
		assert.False(t, req.Stream)
		require.NotNil(t, req.Options)
		assert.Equal(t, 0.7, req.Options.Temperature)
		assert.Equal(t, 2048, req.Options.NumPredict)

		_, _ = w.Write([]byte(`{"model":"deepseek-r1:1.5b","response":"step 1","done":true,"prompt_eval_count":10,"eval_count":5}`))
	})

	resp, err := p.Generate(context.Background(), &llm.GenerateRequest{
		Model:       "deepseek-r1:1.5b",
		Prompt:      "Task: x",
		Temperature: 0.7,
		TopP:        0.9,
		MaxTokens:   2048,
	})
	require.NoError(t, err)
	assert.Equal(t, "step 1", resp.Content)
	assert.Equal(t, 15, resp.TokenUsage.TotalTokens)
}

func TestGenerateServerErrorIsUnavailable(t *testing.T) {
	var calls int
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})

	_, err := p.Generate(context.Background(), &llm.GenerateRequest{Prompt: "x"})
	assert.ErrorIs(t, err, llm.ErrUnavailable)
	assert.Equal(t, 1, calls)
}

func TestGenerateDeadline(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Generate(ctx, &llm.GenerateRequest{Prompt: "x"})
	assert.ErrorIs(t, err, llm.ErrTimeout)
}

func TestEmbed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	})

	out, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, out)
}

func TestEmbedCountMismatch(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	})

	_, err := p.EmbedSingle(context.Background(), "a")
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestListModels(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"deepseek-r1:7b"},{"name":"llama3:8b"}]}`))
	})

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"deepseek-r1:7b", "llama3:8b"}, models)
	assert.NoError(t, p.Ping(context.Background()))
}

func TestKeepAlive(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			KeepAlive string `json:"keep_alive"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, body.KeepAlive)
		if r.URL.Path == "/api/embed" {
			_, _ = w.Write([]byte(`{"embeddings":[[1]]}`))
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	p, err := NewProvider(map[string]any{"base_url": srv.URL, "keep_alive": 30 * time.Minute})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), &llm.GenerateRequest{Prompt: "x"})
	require.NoError(t, err)

	assert.Equal(t, []string{"30m0s", "30m0s"}, got)
}

package biz

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/chainrag/internal/chainrag/metrics"
	"github.com/kart-io/chainrag/internal/chainrag/store"
	"github.com/kart-io/chainrag/pkg/llm"
)

const testDim = 4

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls atomic.Int32
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, _ string) ([]float32, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Name() string { return "fake-embed" }

// fakeChat answers with fn, which receives the 1-based call number.
type fakeChat struct {
	name  string
	fn    func(ctx context.Context, call int, req *llm.GenerateRequest) (*llm.GenerateResponse, error)
	calls atomic.Int32
	last  atomic.Pointer[llm.GenerateRequest]
}

func (f *fakeChat) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	n := int(f.calls.Add(1))
	f.last.Store(req)
	return f.fn(ctx, n, req)
}

func (f *fakeChat) Name() string { return f.name }

func reply(text string) func(context.Context, int, *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	return func(_ context.Context, _ int, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return &llm.GenerateResponse{
			Content:    text,
			Model:      req.Model,
			TokenUsage: llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	}
}

func fail(err error) func(context.Context, int, *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	return func(context.Context, int, *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return nil, err
	}
}

// failingStore returns err from every Search.
type failingStore struct {
	*store.MemoryStore
	err   error
	calls atomic.Int32
}

func (s *failingStore) Search(context.Context, []float32, int) ([]store.Chunk, error) {
	s.calls.Add(1)
	return nil, s.err
}

func upstream(kind error) error {
	return &llm.UpstreamError{Provider: "fake", Op: "generate", Kind: kind, Err: errors.New("scripted")}
}

type fixture struct {
	embedder    *fakeEmbedder
	store       store.VectorStore
	reasoner    *fakeChat
	synthesizer *fakeChat
	metrics     *metrics.Metrics
	config      *Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := store.NewMemoryStore("kb", testDim)
	require.NoError(t, mem.Upsert(context.Background(), []store.Chunk{
		{ID: "refund-1", Source: "policy.md", Text: "Refunds are accepted within 30 days of purchase.", Embedding: []float32{1, 0, 0, 0}},
		{ID: "refund-2", Source: "faq.md", Text: "Refunds go back to the original payment method.", Embedding: []float32{0.9, 0.1, 0, 0}},
		{ID: "shipping", Source: "shipping.md", Text: "Orders ship within two business days.", Embedding: []float32{0, 0, 1, 0}},
	}))

	return &fixture{
		embedder:    &fakeEmbedder{vec: []float32{1, 0, 0, 0}},
		store:       mem,
		reasoner:    &fakeChat{name: "ollama", fn: reply("<think>Reasoning: the policy allows refunds within 30 days.</think>")},
		synthesizer: &fakeChat{name: "openai", fn: reply("You can get a refund within 30 days.")},
		metrics:     metrics.New(),
		config: &Config{
			DefaultK:      4,
			MaxK:          10,
			ContextBudget: 4000,
			Retry:         RetryPolicy{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
			Timeouts: StageTimeouts{
				Embed:      time.Second,
				Retrieve:   time.Second,
				Reason:     time.Second,
				Synthesize: time.Second,
			},
		},
	}
}

func (f *fixture) pipeline() *QueryPipeline {
	return NewQueryPipeline(
		NewEmbedder(f.embedder, testDim),
		NewRetriever(f.store),
		NewReasoningStage(f.reasoner, &ReasoningConfig{Model: "deepseek-r1:7b", Temperature: 0.7, TopP: 0.9}),
		NewSynthesisStage(f.synthesizer, &SynthesisConfig{Model: "gpt-4o-mini", Temperature: 0.7}),
		f.metrics,
		f.config,
	)
}

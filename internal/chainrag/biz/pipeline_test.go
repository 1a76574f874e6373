package biz

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/chainrag/internal/chainrag/store"
	"github.com/kart-io/chainrag/pkg/llm"
	"github.com/kart-io/chainrag/pkg/llm/resilience"
	apierrors "github.com/kart-io/chainrag/pkg/utils/errors"
)

func TestAnswer_RefundQuestion(t *testing.T) {
	f := newFixture(t)

	resp, err := f.pipeline().Answer(context.Background(), Query{Text: "What is the refund window?", K: 2})
	require.NoError(t, err)

	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "refund-1", resp.Sources[0].ID)
	assert.Equal(t, "refund-2", resp.Sources[1].ID)
	assert.GreaterOrEqual(t, resp.Sources[0].Score, resp.Sources[1].Score)

	assert.Equal(t, "the policy allows refunds within 30 days.", resp.Reasoning)
	assert.Equal(t, "You can get a refund within 30 days.", resp.Answer)
	assert.Equal(t, "deepseek-r1:7b", resp.ReasoningModel)
	assert.Equal(t, "gpt-4o-mini", resp.SynthesisModel)
	assert.Contains(t, resp.Context, "within 30 days of purchase")
	assert.NotContains(t, resp.Context, "ship within two business days")

	// 合成提示包含问题、上下文与推理
	prompt := f.synthesizer.last.Load().Prompt
	assert.Contains(t, prompt, "What is the refund window?")
	assert.Contains(t, prompt, "original payment method")
	assert.Contains(t, prompt, "the policy allows refunds")

	stats := f.metrics.Stats()
	queries := stats["queries"].(map[string]any)
	assert.EqualValues(t, 1, queries["total"])
	assert.EqualValues(t, 0, queries["failed"])
}

func TestAnswer_ValidationMakesNoCalls(t *testing.T) {
	tests := []struct {
		name  string
		query Query
	}{
		{"blank text", Query{Text: "   ", K: 2}},
		{"zero k", Query{Text: "refunds?", K: 0}},
		{"k above max", Query{Text: "refunds?", K: 11}},
		{"unknown model", Query{Text: "refunds?", K: 2, ReasoningModel: "llama3:70b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.pipeline().Answer(context.Background(), tt.query)
			require.Error(t, err)
			assert.ErrorIs(t, err, apierrors.ErrValidation)
			assert.Zero(t, f.embedder.calls.Load())
			assert.Zero(t, f.reasoner.calls.Load())
			assert.Zero(t, f.synthesizer.calls.Load())
		})
	}
}

func TestAnswer_AllowedReasoningModel(t *testing.T) {
	f := newFixture(t)
	f.config.ReasoningModels = []string{"qwen3:8b"}

	resp, err := f.pipeline().Answer(context.Background(), Query{Text: "refunds?", K: 1, ReasoningModel: "qwen3:8b"})
	require.NoError(t, err)
	assert.Equal(t, "qwen3:8b", f.reasoner.last.Load().Model)
	assert.Equal(t, "qwen3:8b", resp.ReasoningModel)
}

func TestAnswer_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	failing := &failingStore{
		MemoryStore: store.NewMemoryStore("kb", testDim),
		err:         fmt.Errorf("milvus search: %w: connection refused", store.ErrUnavailable),
	}
	f.store = failing
	f.config.Retry.Retries = 2

	_, err := f.pipeline().Answer(context.Background(), Query{Text: "refunds?", K: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrUpstreamUnavailable)
	assert.EqualValues(t, 3, failing.calls.Load())
	assert.Zero(t, f.reasoner.calls.Load())
	assert.Zero(t, f.synthesizer.calls.Load())
}

func TestAnswer_ReasoningTimeoutThenSuccess(t *testing.T) {
	f := newFixture(t)
	f.config.Retry.Retries = 1
	f.config.Timeouts.Reason = 20 * time.Millisecond
	ok := reply("Reasoning: check the policy.")
	f.reasoner.fn = func(ctx context.Context, call int, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		if call == 1 {
			<-ctx.Done()
			return nil, llm.Classify("ollama", "generate", ctx.Err())
		}
		return ok(ctx, call, req)
	}

	resp, err := f.pipeline().Answer(context.Background(), Query{Text: "refunds?", K: 2})
	require.NoError(t, err)
	assert.Equal(t, "check the policy.", resp.Reasoning)
	assert.EqualValues(t, 2, f.reasoner.calls.Load())
	assert.EqualValues(t, 1, f.synthesizer.calls.Load())
}

func TestAnswer_ReasoningTimeoutExhausted(t *testing.T) {
	f := newFixture(t)
	f.config.Retry.Retries = 1
	f.config.Timeouts.Reason = 10 * time.Millisecond
	f.reasoner.fn = func(ctx context.Context, _ int, _ *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.pipeline().Answer(context.Background(), Query{Text: "refunds?", K: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrStageTimeout)
	assert.EqualValues(t, 2, f.reasoner.calls.Load())
	assert.Zero(t, f.synthesizer.calls.Load())
}

func TestAnswer_SynthesisTimeoutNotRetried(t *testing.T) {
	f := newFixture(t)
	f.config.Retry.Retries = 3
	f.config.Timeouts.Synthesize = 10 * time.Millisecond
	f.synthesizer.fn = func(ctx context.Context, _ int, _ *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.pipeline().Answer(context.Background(), Query{Text: "refunds?", K: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrStageTimeout)
	assert.EqualValues(t, 1, f.synthesizer.calls.Load())
}

func TestAnswer_UnauthorizedNotRetried(t *testing.T) {
	f := newFixture(t)
	f.config.Retry.Retries = 3
	f.synthesizer.fn = fail(upstream(llm.ErrUnauthorized))

	_, err := f.pipeline().Answer(context.Background(), Query{Text: "refunds?", K: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrAuthentication)
	assert.EqualValues(t, 1, f.synthesizer.calls.Load())
}

func TestAnswer_EmptyReasoningRetriedOnce(t *testing.T) {
	f := newFixture(t)
	f.config.Retry.Retries = 3
	f.reasoner.fn = reply("<think>\n</think>")

	_, err := f.pipeline().Answer(context.Background(), Query{Text: "refunds?", K: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrEmptyResult)
	assert.EqualValues(t, 2, f.reasoner.calls.Load())
	assert.Zero(t, f.synthesizer.calls.Load())
}

func TestAnswer_RateLimitedRetried(t *testing.T) {
	f := newFixture(t)
	f.config.Retry.Retries = 2
	ok := reply("Refunds within 30 days.")
	f.synthesizer.fn = func(ctx context.Context, call int, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		if call < 3 {
			return nil, upstream(llm.ErrRateLimited)
		}
		return ok(ctx, call, req)
	}

	resp, err := f.pipeline().Answer(context.Background(), Query{Text: "refunds?", K: 2})
	require.NoError(t, err)
	assert.Equal(t, "Refunds within 30 days.", resp.Answer)
	assert.EqualValues(t, 3, f.synthesizer.calls.Load())
}

func TestAnswer_DimensionMismatchFailsFast(t *testing.T) {
	f := newFixture(t)
	f.config.Retry.Retries = 3
	f.embedder.vec = []float32{1, 0, 0}

	_, err := f.pipeline().Answer(context.Background(), Query{Text: "refunds?", K: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrDimensionMismatch)
	assert.EqualValues(t, 1, f.embedder.calls.Load())
	assert.Zero(t, f.reasoner.calls.Load())
}

func TestAnswer_EmptyCollectionStillAnswers(t *testing.T) {
	f := newFixture(t)
	f.store = store.NewMemoryStore("kb", testDim)

	resp, err := f.pipeline().Answer(context.Background(), Query{Text: "refunds?", K: 2})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Context)
	assert.NotEmpty(t, resp.Answer)
}

func TestAnswer_CallerCanceled(t *testing.T) {
	f := newFixture(t)
	f.config.Retry.Retries = 3
	ctx, cancel := context.WithCancel(context.Background())
	f.reasoner.fn = func(ctx context.Context, _ int, _ *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.pipeline().Answer(ctx, Query{Text: "refunds?", K: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrCanceled)
	assert.EqualValues(t, 1, f.reasoner.calls.Load())
	assert.Zero(t, f.synthesizer.calls.Load())
}

func TestAnswer_CallerDeadline(t *testing.T) {
	f := newFixture(t)
	f.config.Retry.Retries = 3
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	f.reasoner.fn = func(ctx context.Context, _ int, _ *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.pipeline().Answer(ctx, Query{Text: "refunds?", K: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrStageTimeout)
	assert.EqualValues(t, 1, f.reasoner.calls.Load())
}

func TestAnswer_BreakerOpens(t *testing.T) {
	f := newFixture(t)
	f.config.Breaker = &resilience.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute, HalfOpenMaxCalls: 1}
	f.reasoner.fn = fail(upstream(llm.ErrUnavailable))
	p := f.pipeline()

	for i := 0; i < 2; i++ {
		_, err := p.Answer(context.Background(), Query{Text: "refunds?", K: 2})
		assert.ErrorIs(t, err, apierrors.ErrUpstreamUnavailable)
	}
	_, err := p.Answer(context.Background(), Query{Text: "refunds?", K: 2})
	assert.ErrorIs(t, err, apierrors.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitBreakerOpen)
	assert.EqualValues(t, 2, f.reasoner.calls.Load())

	states := map[string]string{}
	for _, b := range p.Breakers() {
		states[b.Name] = b.State
	}
	assert.Equal(t, map[string]string{
		"embed": "closed", "retrieve": "closed", "reason": "open", "synthesize": "closed",
	}, states)
}

func TestQueryPipeline_BreakersDisabled(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.pipeline().Breakers())
}

func TestAnswer_ContextBudget(t *testing.T) {
	f := newFixture(t)
	f.config.ContextBudget = 20

	resp, err := f.pipeline().Answer(context.Background(), Query{Text: "refunds?", K: 2})
	require.NoError(t, err)
	assert.Equal(t, "Refunds are accepted", resp.Context)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "refund-1", resp.Sources[0].ID)
}

func TestQueryPipeline_Models(t *testing.T) {
	f := newFixture(t)
	f.config.ReasoningModels = []string{"qwen3:8b", "deepseek-r1:7b"}
	p := f.pipeline()

	assert.Equal(t, []string{"deepseek-r1:7b", "qwen3:8b"}, p.ReasoningModels())
	assert.Equal(t, "deepseek-r1:7b", p.DefaultReasoningModel())
	assert.Equal(t, "gpt-4o-mini", p.SynthesisModel())
	assert.Equal(t, 4, p.DefaultK())
}

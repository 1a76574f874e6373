package biz

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/chainrag/internal/chainrag/metrics"
	"github.com/kart-io/chainrag/pkg/infra/middleware"
	"github.com/kart-io/chainrag/pkg/llm/resilience"
	apierrors "github.com/kart-io/chainrag/pkg/utils/errors"
	"github.com/kart-io/chainrag/pkg/validator"
)

const tracerName = "github.com/kart-io/chainrag/internal/chainrag/biz"

// Config 流水线配置，每个 QueryPipeline 实例持有一份。
type Config struct {
	// DefaultK 请求未指定 k 时使用的值。
	DefaultK int
	// MaxK 允许的最大 k。
	MaxK int
	// ContextBudget 上下文块 rune 预算，<=0 表示不限制。
	ContextBudget int
	// ReasoningModels 请求可选的推理模型，默认推理模型总是可选。
	ReasoningModels []string

	Retry    RetryPolicy
	Timeouts StageTimeouts
	// Breaker 为 nil 或 MaxFailures 为 0 时不启用熔断。
	Breaker *resilience.CircuitBreakerConfig
}

// DefaultConfig 返回默认流水线配置。
func DefaultConfig() *Config {
	return &Config{
		DefaultK:      4,
		MaxK:          20,
		ContextBudget: 8000,
		Retry: RetryPolicy{
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Timeouts: StageTimeouts{
			Embed:      30 * time.Second,
			Retrieve:   10 * time.Second,
			Reason:     180 * time.Second,
			Synthesize: 60 * time.Second,
		},
	}
}

// QueryPipeline 串联 Embedder、Retriever、ReasoningStage 与 SynthesisStage。
// 无跨查询的可变状态（熔断器除外），可被并发调用。
type QueryPipeline struct {
	embedder    *Embedder
	retriever   *Retriever
	reasoner    *ReasoningStage
	synthesizer *SynthesisStage

	invoker   *invoker
	validator *validator.Validator
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	config    *Config
	models    []string
}

// NewQueryPipeline 创建查询流水线。
func NewQueryPipeline(
	embedder *Embedder,
	retriever *Retriever,
	reasoner *ReasoningStage,
	synthesizer *SynthesisStage,
	m *metrics.Metrics,
	config *Config,
) *QueryPipeline {
	if config == nil {
		config = DefaultConfig()
	}
	if m == nil {
		m = metrics.New()
	}

	models := append([]string{reasoner.Model()}, config.ReasoningModels...)
	slices.Sort(models)
	models = slices.Compact(models)

	return &QueryPipeline{
		embedder:    embedder,
		retriever:   retriever,
		reasoner:    reasoner,
		synthesizer: synthesizer,
		invoker:     newInvoker(config.Retry, config.Timeouts, config.Breaker, m),
		validator:   validator.New(),
		metrics:     m,
		tracer:      otel.Tracer(tracerName),
		config:      config,
		models:      models,
	}
}

// DefaultK 返回默认检索数量。
func (p *QueryPipeline) DefaultK() int { return p.config.DefaultK }

// ReasoningModels 返回请求可选的推理模型。
func (p *QueryPipeline) ReasoningModels() []string { return slices.Clone(p.models) }

// DefaultReasoningModel 返回默认推理模型。
func (p *QueryPipeline) DefaultReasoningModel() string { return p.reasoner.Model() }

// SynthesisModel 返回合成模型。
func (p *QueryPipeline) SynthesisModel() string { return p.synthesizer.Model() }

// Breakers 返回各阶段熔断器快照，未启用熔断时为 nil。
func (p *QueryPipeline) Breakers() []resilience.BreakerSnapshot { return p.invoker.snapshots() }

// Metrics 返回流水线使用的指标实例。
func (p *QueryPipeline) Metrics() *metrics.Metrics { return p.metrics }

// Answer 执行一次查询。成功时返回完整的 Response，失败时返回 *errors.Errno，二者不会同时出现。
func (p *QueryPipeline) Answer(ctx context.Context, q Query) (resp *Response, err error) {
	start := time.Now()
	sm := NewStateMachine()
	timings := make(map[Stage]time.Duration, len(Stages))
	requestID := middleware.GetRequestID(ctx)

	ctx, span := p.tracer.Start(ctx, "chainrag.query",
		trace.WithAttributes(
			attribute.Int("query.k", q.K),
			attribute.String("query.reasoning_model", q.ReasoningModel),
		))
	defer span.End()

	p.metrics.QueryStarted()
	defer func() {
		outcome := StateCompleted.String()
		if err != nil {
			_ = sm.Fail()
			e := p.toErrno(ctx, err)
			outcome = strconv.Itoa(e.Code)
			span.RecordError(err)
			span.SetStatus(codes.Error, e.MessageEN)
			if e.Code == apierrors.ErrCanceled.Code {
				p.metrics.RecordCanceled()
			}

			logger.Warnw("Query failed",
				"request_id", requestID,
				"state", sm.State().String(),
				"code", e.Code,
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			err = e
		} else {
			logger.Infow("Query completed",
				"request_id", requestID,
				"k", q.K,
				"sources", len(resp.Sources),
				"reasoning_model", resp.ReasoningModel,
				"embed_ms", timings[StageEmbed].Milliseconds(),
				"retrieve_ms", timings[StageRetrieve].Milliseconds(),
				"reason_ms", timings[StageReason].Milliseconds(),
				"synthesize_ms", timings[StageSynthesize].Milliseconds(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
		span.SetAttributes(attribute.String("query.state", sm.State().String()))
		p.metrics.QueryFinished(outcome, time.Since(start), err)
	}()

	if err := validateQuery(p.validator, q, p.config.MaxK, p.models); err != nil {
		return nil, err
	}

	run := func(stage Stage, next State, fn func(ctx context.Context) error) error {
		if err := sm.Advance(next); err != nil {
			return err
		}
		sctx, sspan := p.tracer.Start(ctx, "chainrag."+string(stage))
		defer sspan.End()

		stageStart := time.Now()
		err := p.invoker.run(sctx, stage, fn)
		timings[stage] = time.Since(stageStart)
		if err != nil {
			sspan.RecordError(err)
			sspan.SetStatus(codes.Error, classify(err).String())
		}
		return err
	}

	var vector []float32
	err = run(StageEmbed, StateEmbedding, func(ctx context.Context) error {
		v, err := p.embedder.Embed(ctx, q.Text)
		if err == nil {
			vector = v
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	var result *RetrievalResult
	err = run(StageRetrieve, StateRetrieving, func(ctx context.Context) error {
		r, err := p.retriever.Retrieve(ctx, vector, q.K)
		if err == nil {
			result = r
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(result.Chunks) == 0 {
		logger.Warnw("No chunks retrieved, reasoning without context", "request_id", requestID)
	}

	block := BuildContext(result.Chunks, p.config.ContextBudget)
	if block.Truncated {
		logger.Debugw("Context truncated to budget",
			"request_id", requestID,
			"budget", p.config.ContextBudget,
			"retrieved", len(result.Chunks),
			"kept", len(block.Sources),
		)
	}

	var reasoning *ReasoningTrace
	err = run(StageReason, StateReasoning, func(ctx context.Context) error {
		t, err := p.reasoner.Reason(ctx, q.Text, block.Text, q.ReasoningModel)
		if err == nil {
			reasoning = t
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	var answer *Answer
	err = run(StageSynthesize, StateSynthesizing, func(ctx context.Context) error {
		a, err := p.synthesizer.Synthesize(ctx, q.Text, block.Text, reasoning.Text)
		if err == nil {
			answer = a
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := sm.Advance(StateCompleted); err != nil {
		return nil, err
	}
	p.metrics.RecordTokens(
		reasoning.Usage.PromptTokens+answer.Usage.PromptTokens,
		reasoning.Usage.CompletionTokens+answer.Usage.CompletionTokens,
	)

	return &Response{
		Answer:         answer.Text,
		Reasoning:      reasoning.Text,
		Sources:        sourcesOf(block.Sources),
		Context:        block.Text,
		ReasoningModel: reasoning.Model,
		SynthesisModel: answer.Model,
	}, nil
}

// toErrno maps a pipeline failure to its stable error code. It is the only
// place where upstream error kinds become API errors.
func (p *QueryPipeline) toErrno(ctx context.Context, err error) *apierrors.Errno {
	var e *apierrors.Errno
	if errors.As(err, &e) {
		return e
	}

	stage := "query"
	var se *StageError
	if errors.As(err, &se) {
		stage = string(se.Stage)
	}

	// 调用方的取消或截止时间优先于阶段错误。
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.Canceled) {
			return apierrors.ErrCanceled.WithCause(err)
		}
		return apierrors.ErrStageTimeout.WithMessagef("Query deadline exceeded during %s", stage).WithCause(err)
	}

	switch classify(err) {
	case failureCanceled:
		return apierrors.ErrCanceled.WithCause(err)
	case failureDimension:
		return apierrors.ErrDimensionMismatch.WithCause(err)
	case failureUnauthorized:
		return apierrors.ErrAuthentication.WithCause(err)
	case failureTimeout:
		return apierrors.ErrStageTimeout.WithMessagef("Pipeline stage %s timed out", stage).WithCause(err)
	case failureEmpty:
		return apierrors.ErrEmptyResult.WithMessagef("Model returned no usable text during %s", stage).WithCause(err)
	case failureUnavailable, failureRateLimited, failureBreakerOpen:
		return apierrors.ErrUpstreamUnavailable.WithMessagef("Upstream unavailable during %s", stage).WithCause(err)
	default:
		return apierrors.ErrInternal.WithCause(err)
	}
}

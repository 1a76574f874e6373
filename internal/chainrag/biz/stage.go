package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/chainrag/internal/chainrag/metrics"
	"github.com/kart-io/chainrag/internal/chainrag/store"
	"github.com/kart-io/chainrag/pkg/llm"
	"github.com/kart-io/chainrag/pkg/llm/resilience"
)

// Stage 流水线中一次外部调用所属的阶段。
type Stage string

// 流水线阶段。
const (
	StageEmbed      Stage = "embed"
	StageRetrieve   Stage = "retrieve"
	StageReason     Stage = "reason"
	StageSynthesize Stage = "synthesize"
)

// Stages 按执行顺序列出全部阶段。
var Stages = []Stage{StageEmbed, StageRetrieve, StageReason, StageSynthesize}

// ErrStageTimeout 单次尝试超过阶段超时。
var ErrStageTimeout = errors.New("stage timeout")

// StageError 阶段在用尽重试后的失败。
type StageError struct {
	Stage    Stage
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// failure 失败类别，决定是否重试以及映射到哪个错误码。
type failure int

const (
	failureOther failure = iota
	failureCanceled
	failureTimeout
	failureUnavailable
	failureRateLimited
	failureEmpty
	failureUnauthorized
	failureDimension
	failureBreakerOpen
)

func (f failure) String() string {
	switch f {
	case failureCanceled:
		return "canceled"
	case failureTimeout:
		return "timeout"
	case failureUnavailable:
		return "unavailable"
	case failureRateLimited:
		return "rate_limited"
	case failureEmpty:
		return "empty"
	case failureUnauthorized:
		return "unauthorized"
	case failureDimension:
		return "dimension_mismatch"
	case failureBreakerOpen:
		return "breaker_open"
	default:
		return "other"
	}
}

// classify 判断错误类别。顺序有意义：凭证与维度错误优先于可重试类别。
func classify(err error) failure {
	switch {
	case err == nil:
		return failureOther
	case errors.Is(err, context.Canceled):
		return failureCanceled
	case errors.Is(err, store.ErrDimensionMismatch):
		return failureDimension
	case errors.Is(err, llm.ErrUnauthorized):
		return failureUnauthorized
	case errors.Is(err, resilience.ErrCircuitBreakerOpen):
		return failureBreakerOpen
	case errors.Is(err, ErrStageTimeout), errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return failureTimeout
	case errors.Is(err, llm.ErrRateLimited):
		return failureRateLimited
	case errors.Is(err, llm.ErrEmptyResponse):
		return failureEmpty
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, store.ErrUnavailable):
		return failureUnavailable
	default:
		return failureOther
	}
}

// retryAllowed reports whether attempt (1-based) may be followed by another
// one, given the configured budget.
func retryAllowed(stage Stage, f failure, attempt, budget int) bool {
	switch f {
	case failureUnavailable, failureRateLimited:
		return attempt <= budget
	case failureTimeout:
		return stage != StageSynthesize && attempt <= budget
	case failureEmpty:
		return stage != StageRetrieve && attempt <= min(budget, 1)
	default:
		return false
	}
}

// RetryPolicy 各阶段共享的重试配置。
type RetryPolicy struct {
	// Retries 可重试失败的额外尝试次数，0..3。
	Retries        int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// StageTimeouts 每次尝试的超时时间，<=0 表示不设超时。
type StageTimeouts struct {
	Embed      time.Duration
	Retrieve   time.Duration
	Reason     time.Duration
	Synthesize time.Duration
}

func (t StageTimeouts) of(stage Stage) time.Duration {
	switch stage {
	case StageEmbed:
		return t.Embed
	case StageRetrieve:
		return t.Retrieve
	case StageReason:
		return t.Reason
	default:
		return t.Synthesize
	}
}

// invoker 按阶段执行外部调用，负责超时、重试与熔断。
type invoker struct {
	policy   RetryPolicy
	timeouts StageTimeouts
	breakers map[Stage]*resilience.CircuitBreaker
	metrics  *metrics.Metrics
}

func newInvoker(policy RetryPolicy, timeouts StageTimeouts, breaker *resilience.CircuitBreakerConfig, m *metrics.Metrics) *invoker {
	inv := &invoker{
		policy:   policy,
		timeouts: timeouts,
		metrics:  m,
	}
	if breaker != nil && breaker.MaxFailures > 0 {
		cfg := *breaker
		// 只有基础设施类失败计入熔断，凭证或空结果不代表上游宕机。
		cfg.IsFailure = func(err error) bool {
			f := classify(err)
			return f == failureUnavailable || f == failureTimeout
		}
		inv.breakers = make(map[Stage]*resilience.CircuitBreaker, len(Stages))
		for _, s := range Stages {
			inv.breakers[s] = resilience.NewCircuitBreaker(string(s), &cfg)
		}
	}
	return inv
}

// snapshots returns breaker state in stage order, nil when breakers are off.
func (inv *invoker) snapshots() []resilience.BreakerSnapshot {
	if inv.breakers == nil {
		return nil
	}
	out := make([]resilience.BreakerSnapshot, 0, len(Stages))
	for _, s := range Stages {
		out = append(out, inv.breakers[s].Snapshot())
	}
	return out
}

// run executes fn for stage under the retry table. It returns *StageError on
// failure; the result of the successful attempt is left to fn's closure.
func (inv *invoker) run(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempts := 0

	cfg := &resilience.RetryConfig{
		MaxAttempts:  inv.policy.Retries + 1,
		InitialDelay: inv.policy.InitialBackoff,
		MaxDelay:     inv.policy.MaxBackoff,
		Multiplier:   2.0,
		RetryableErrors: func(err error, attempt int) bool {
			return retryAllowed(stage, classify(err), attempt, inv.policy.Retries)
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			inv.metrics.RecordRetry(string(stage))
			logger.Warnw("Retrying pipeline stage",
				"stage", stage,
				"attempt", attempt,
				"backoff", delay.String(),
				"failure", classify(err).String(),
				"error", err.Error(),
			)
		},
	}

	err := resilience.RetryWithBackoff(ctx, cfg, func(attempt int) error {
		attempts = attempt
		return inv.attempt(ctx, stage, fn)
	})
	inv.metrics.RecordStage(string(stage), time.Since(start), attempts, err)
	if err != nil {
		return &StageError{Stage: stage, Attempts: attempts, Err: err}
	}
	return nil
}

func (inv *invoker) attempt(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	timeout := inv.timeouts.of(stage)
	actx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	call := func() error { return fn(actx) }
	var err error
	if b := inv.breakers[stage]; b != nil {
		err = b.Execute(call)
	} else {
		err = call()
	}

	// 区分阶段超时与调用方截止时间：只有父上下文仍有效时才算阶段超时。
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		inv.metrics.RecordTimeout(string(stage))
		err = fmt.Errorf("%w: %s exceeded %s: %w", ErrStageTimeout, stage, timeout, err)
	}
	return err
}

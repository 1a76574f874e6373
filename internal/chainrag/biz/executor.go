package biz

import (
	"context"
	"errors"

	"github.com/kart-io/logger"

	"github.com/kart-io/chainrag/internal/chainrag/metrics"
	"github.com/kart-io/chainrag/pkg/infra/middleware"
	"github.com/kart-io/chainrag/pkg/infra/pool"
	apierrors "github.com/kart-io/chainrag/pkg/utils/errors"
)

// Executor 通过有界工作池限制同时执行的查询数量。
// 池与等待队列都满时立即拒绝，不会无限排队。
type Executor struct {
	pipeline *QueryPipeline
	pool     *pool.Pool
	metrics  *metrics.Metrics
}

// NewExecutor 创建查询执行器。
func NewExecutor(pipeline *QueryPipeline, p *pool.Pool) *Executor {
	return &Executor{pipeline: pipeline, pool: p, metrics: pipeline.Metrics()}
}

// Pipeline 返回底层流水线。
func (e *Executor) Pipeline() *QueryPipeline { return e.pipeline }

// Answer 在工作池中执行查询。
func (e *Executor) Answer(ctx context.Context, q Query) (*Response, error) {
	var resp *Response
	err := e.pool.Do(ctx, func(ctx context.Context) error {
		r, err := e.pipeline.Answer(ctx, q)
		resp = r
		return err
	})

	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, pool.ErrPoolOverload):
		e.metrics.RecordRejected()
		logger.Warnw("Query rejected, worker pool saturated",
			"request_id", middleware.GetRequestID(ctx),
			"running", e.pool.Running(),
			"waiting", e.pool.Waiting(),
		)
		return nil, apierrors.ErrOverloaded
	case errors.Is(err, pool.ErrPoolClosed):
		return nil, apierrors.ErrServiceUnavailable.WithCause(err)
	}

	var errno *apierrors.Errno
	if errors.As(err, &errno) {
		return nil, errno
	}

	// 排队期间或执行中调用方放弃，已开始执行的查询由流水线自行计数。
	if errors.Is(err, context.Canceled) {
		return nil, apierrors.ErrCanceled.WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, apierrors.ErrStageTimeout.WithMessage("Query deadline exceeded").WithCause(err)
	}
	return nil, apierrors.ErrInternal.WithCause(err)
}

// Stats 返回工作池快照。
func (e *Executor) Stats() pool.Stats { return e.pool.Stats() }

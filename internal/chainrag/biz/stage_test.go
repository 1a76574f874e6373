package biz

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/chainrag/internal/chainrag/store"
	"github.com/kart-io/chainrag/pkg/llm"
	"github.com/kart-io/chainrag/pkg/llm/resilience"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want failure
	}{
		{context.Canceled, failureCanceled},
		{fmt.Errorf("embed: %w", context.DeadlineExceeded), failureTimeout},
		{fmt.Errorf("%w: reason", ErrStageTimeout), failureTimeout},
		{upstream(llm.ErrTimeout), failureTimeout},
		{upstream(llm.ErrUnavailable), failureUnavailable},
		{fmt.Errorf("qdrant query: %w", store.ErrUnavailable), failureUnavailable},
		{upstream(llm.ErrRateLimited), failureRateLimited},
		{upstream(llm.ErrEmptyResponse), failureEmpty},
		{upstream(llm.ErrUnauthorized), failureUnauthorized},
		{store.ErrDimensionMismatch, failureDimension},
		{resilience.ErrCircuitBreakerOpen, failureBreakerOpen},
		{upstream(llm.ErrRejected), failureOther},
		// 外层的超时包装不改变凭证错误的类别
		{fmt.Errorf("%w: %w", ErrStageTimeout, upstream(llm.ErrUnauthorized)), failureUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestRetryAllowed(t *testing.T) {
	tests := []struct {
		stage   Stage
		failure failure
		attempt int
		budget  int
		want    bool
	}{
		{StageRetrieve, failureUnavailable, 1, 0, false},
		{StageRetrieve, failureUnavailable, 3, 3, true},
		{StageRetrieve, failureUnavailable, 4, 3, false},
		{StageSynthesize, failureRateLimited, 2, 3, true},
		{StageReason, failureTimeout, 1, 1, true},
		{StageEmbed, failureTimeout, 2, 1, false},
		{StageSynthesize, failureTimeout, 1, 3, false},
		{StageReason, failureEmpty, 1, 3, true},
		{StageReason, failureEmpty, 2, 3, false},
		{StageSynthesize, failureEmpty, 1, 0, false},
		{StageRetrieve, failureEmpty, 1, 3, false},
		{StageReason, failureUnauthorized, 1, 3, false},
		{StageEmbed, failureDimension, 1, 3, false},
		{StageReason, failureBreakerOpen, 1, 3, false},
		{StageReason, failureCanceled, 1, 3, false},
		{StageReason, failureOther, 1, 3, false},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("%s/%s/%d-of-%d", tt.stage, tt.failure, tt.attempt, tt.budget)
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryAllowed(tt.stage, tt.failure, tt.attempt, tt.budget))
		})
	}
}

func TestStageTimeouts(t *testing.T) {
	timeouts := StageTimeouts{Embed: 1, Retrieve: 2, Reason: 3, Synthesize: 4}
	for i, s := range Stages {
		assert.EqualValues(t, i+1, timeouts.of(s))
	}
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: StageReason, Attempts: 2, Err: upstream(llm.ErrUnavailable)}
	assert.Contains(t, err.Error(), "reason failed after 2 attempt(s)")
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}

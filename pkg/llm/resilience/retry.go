// Package resilience 为上游模型与向量库调用提供有界重试和熔断。
package resilience

import (
	"context"
	"time"
)

// RetryConfig 重试配置。
type RetryConfig struct {
	// MaxAttempts 包含首次调用，小于 1 按 1 处理。
	MaxAttempts  int
	InitialDelay time.Duration
	// MaxDelay 单次等待上限，0 表示不封顶。
	MaxDelay   time.Duration
	Multiplier float64
	// RetryableErrors 判断第 attempt 次（从 1 开始）失败后能否再试。
	// 为 nil 时不重试。
	RetryableErrors func(err error, attempt int) bool
	// OnRetry 在每次等待前调用。
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig 只尝试一次。
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  1,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// Backoff 第 attempt 次失败后的等待时间: InitialDelay * Multiplier^(attempt-1)，
// 不超过 MaxDelay。
func (c *RetryConfig) Backoff(attempt int) time.Duration {
	d := float64(c.InitialDelay)
	for range attempt - 1 {
		d *= c.Multiplier
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	return time.Duration(d)
}

// RetryWithBackoff 调用 fn 直到成功、错误不可重试或次数用尽，返回最后一次的错误。
// 等待期间 ctx 结束则返回 ctx.Err()。
func RetryWithBackoff(ctx context.Context, config *RetryConfig, fn func(attempt int) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	limit := max(config.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt >= limit || ctx.Err() != nil ||
			config.RetryableErrors == nil || !config.RetryableErrors(err, attempt) {
			return err
		}

		delay := config.Backoff(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package resilience

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrMaxRetriesExceeded 超过最大重试次数
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// RetryPolicy 重试策略
type RetryPolicy struct {
	// MaxRetries 最大重试次数（不含首次调用）
	MaxRetries int
	// InitialDelay 初始延迟，0 表示立即重试
	InitialDelay time.Duration
	// MaxDelay 最大延迟
	MaxDelay time.Duration
	// BackoffMultiplier 退避乘数（指数退避）
	BackoffMultiplier float64
	// Retryable 可重试的错误判断函数，nil 表示所有错误都可重试
	Retryable func(error) bool
	// OnRetry 重试回调
	OnRetry func(attempt int, err error, delay time.Duration)
}

// OncePolicy 只在 retryable 命中时立即重试一次
func OncePolicy(retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        1,
		BackoffMultiplier: 1.0,
		Retryable:         retryable,
	}
}

// Retry 执行带重试的函数
// 重试次数耗尽时返回的错误同时匹配 ErrMaxRetriesExceeded 和最后一次的错误
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.calculateDelay(attempt)

			if policy.OnRetry != nil {
				policy.OnRetry(attempt, lastErr, delay)
			}

			if delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if policy.Retryable != nil && !policy.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	if policy.MaxRetries == 0 {
		return lastErr
	}
	return errors.Join(ErrMaxRetriesExceeded, lastErr)
}

// calculateDelay 计算延迟时间（指数退避）
func (p *RetryPolicy) calculateDelay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}
	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1))

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Package backoff 提供带抖动的指数退避重试，用于外部网关等瞬时故障场景
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// jitterFactor 抖动幅度，实际延迟在计算值的 ±10% 内浮动
const jitterFactor = 0.1

// Config 重试策略
type Config struct {
	// 最大重试次数（不含首次尝试）
	MaxRetries int
	// 首次重试延迟
	InitialDelay time.Duration
	// 延迟上限
	MaxDelay time.Duration
	// 退避倍率
	Multiplier float64
}

// Default 默认重试策略
var Default = Config{
	MaxRetries:   3,
	InitialDelay: time.Second,
	MaxDelay:     60 * time.Second,
	Multiplier:   2,
}

// Delay 返回第 attempt 次重试前的等待时间，attempt 从 0 开始计
func (c Config) Delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if limit := float64(c.MaxDelay); d > limit {
		d = limit
	}
	jitter := 1 + jitterFactor*(rand.Float64()*2-1)
	return time.Duration(d * jitter)
}

// ExhaustedError 表示所有尝试均已失败
type ExhaustedError struct {
	// 总尝试次数（首次尝试 + 各次重试）
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("exhausted %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do 执行 op，失败且可重试时按策略退避，直到成功、遇到不可重试错误或重试耗尽。
// 不可重试错误立即返回，不经历任何等待。重试耗尽时返回 *ExhaustedError。
func Do(ctx context.Context, cfg Config, label string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(cfg.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if lastErr = op(ctx); lastErr == nil {
			return nil
		}

		if !Retryable(lastErr) {
			return fmt.Errorf("%s: %w", label, lastErr)
		}
	}

	return &ExhaustedError{
		Attempts: cfg.MaxRetries + 1,
		Err:      fmt.Errorf("%s: %w", label, lastErr),
	}
}

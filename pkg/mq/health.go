package mq

import (
	"sync"
	"time"
)

// defaultRetryAfter 发布失败后重新探测 broker 的默认间隔
const defaultRetryAfter = 30 * time.Second

// HealthTracker 跟踪 broker 可用性。
// 发布失败后进入 unhealthy；距最近一次失败超过 retryAfter 后视为恢复，
// 放行一次真实发布作为探测（半开）。
type HealthTracker struct {
	mu          sync.Mutex
	unhealthy   bool
	lastFailure time.Time
	retryAfter  time.Duration
}

// NewHealthTracker 创建健康跟踪器，retryAfter 非正时取默认 30s
func NewHealthTracker(retryAfter time.Duration) *HealthTracker {
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}
	return &HealthTracker{retryAfter: retryAfter}
}

// IsHealthy 返回当前是否应当尝试真实发布
func (t *HealthTracker) IsHealthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.unhealthy {
		return true
	}
	return time.Since(t.lastFailure) >= t.retryAfter
}

// RecordFailure 记录一次发布失败
func (t *HealthTracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unhealthy = true
	t.lastFailure = time.Now()
}

// RecordSuccess 记录一次发布成功
func (t *HealthTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unhealthy = false
}

// Package application 通知管道的应用服务层
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
	"github.com/pulsewire/notifyhub/pkg/metrics"
)

// Aggregator 聚合窗口管理器。
// 将同类事件的突发收敛为一条摘要通知（"Alice 和 49 others 赞了你的帖子"），
// 窗口按 (接收者, 类型, 实体, 代) 分桶，由各优先级的分区 worker 并发写入。
type Aggregator struct {
	store        domain.WindowStore
	duration     time.Duration
	maxBatchSize int64
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewAggregator 构造函数
func NewAggregator(store domain.WindowStore, duration time.Duration, maxBatchSize int, m *metrics.Metrics, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:        store,
		duration:     duration,
		maxBatchSize: int64(maxBatchSize),
		metrics:      m,
		logger:       logger,
	}
}

// Duration 返回窗口时长，扫描器据此推算上一代窗口
func (a *Aggregator) Duration() time.Duration {
	return a.duration
}

// Decide 将事件并入聚合窗口并返回此刻应当下发的事件，nil 表示事件已被窗口吸收。
// 不可聚合类型不创建窗口，原样返回；窗口内去重 actor 数达到阈值时同步冲刷，
// 返回聚合后的摘要事件。
// 窗口存储故障一律按"立即下发"处理：宁可丢失聚合也不丢通知。
func (a *Aggregator) Decide(ctx context.Context, e *domain.NotificationEvent) *domain.NotificationEvent {
	if !e.Type.Aggregatable() {
		return e
	}

	key := domain.NewWindowKey(e, domain.WindowID(time.Now(), a.duration))

	count, err := a.store.Touch(ctx, key, e)
	if err != nil {
		a.logger.WarnContext(ctx, "window touch failed, sending immediately",
			"event_id", e.ID, "target_id", e.TargetID, "type", e.Type, "error", err)
		return e
	}

	if count >= a.maxBatchSize {
		return a.flushNow(ctx, key, e)
	}

	a.metrics.EventsAggregated.Inc()
	return nil
}

// flushNow 阈值触发的同步冲刷。
// 并发冲刷同一窗口时只有第一个取到内容，其余观察到空窗口不再下发。
func (a *Aggregator) flushNow(ctx context.Context, key domain.WindowKey, e *domain.NotificationEvent) *domain.NotificationEvent {
	snap, err := a.store.Consume(ctx, key)
	if err != nil {
		a.logger.WarnContext(ctx, "window consume failed, sending immediately",
			"event_id", e.ID, "error", err)
		return e
	}
	if snap.Empty() {
		// 另一个并发冲刷已取走窗口，本事件的 actor 已包含在其中
		return nil
	}

	a.metrics.WindowFlushes.WithLabelValues("threshold").Inc()
	summary := domain.BuildSummary(snap, time.Now())
	return &summary
}

// SweepGeneration 冲刷指定代尚存的全部窗口并返回各自的摘要事件。
// 单个窗口的失败只记日志，不阻断同代的其余窗口。
func (a *Aggregator) SweepGeneration(ctx context.Context, windowID int64) []domain.NotificationEvent {
	keys, err := a.store.ListGeneration(ctx, windowID)
	if err != nil {
		a.logger.ErrorContext(ctx, "list generation windows failed", "window_id", windowID, "error", err)
		return nil
	}

	summaries := make([]domain.NotificationEvent, 0, len(keys))
	for _, key := range keys {
		snap, err := a.store.Consume(ctx, key)
		if err != nil {
			a.logger.ErrorContext(ctx, "window consume failed during sweep",
				"target_id", key.TargetID, "type", key.Type, "window_id", key.WindowID, "error", err)
			continue
		}
		if snap.Empty() {
			// 阈值冲刷已抢先取走
			continue
		}

		a.metrics.WindowFlushes.WithLabelValues("sweep").Inc()
		summaries = append(summaries, domain.BuildSummary(snap, time.Now()))
	}
	return summaries
}

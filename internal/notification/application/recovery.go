package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
	"github.com/pulsewire/notifyhub/pkg/metrics"
)

// BrokerPublisher 原样补发已序列化消息体的发布端口
type BrokerPublisher interface {
	SendRaw(ctx context.Context, topic, key string, payload []byte) error
}

// RecoveryService 兜底补发器。
// 周期性拉取未处理的兜底记录（按创建时间升序），逐条重新投递到原定主题：
// 成功置 processed，失败递增 retryCount 并记录原因。
// 达到补发上限的记录进入失败桶，保留待查，不再参与补发。
type RecoveryService struct {
	store      domain.FallbackStore
	producer   BrokerPublisher
	maxRetries int
	batchSize  int
	interval   time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewRecoveryService 构造函数
func NewRecoveryService(store domain.FallbackStore, producer BrokerPublisher, maxRetries, batchSize int, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *RecoveryService {
	return &RecoveryService{
		store:      store,
		producer:   producer,
		maxRetries: maxRetries,
		batchSize:  batchSize,
		interval:   interval,
		metrics:    m,
		logger:     logger,
	}
}

// Start 启动补发循环，阻塞直到 ctx 取消
func (s *RecoveryService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("fallback recovery started",
		"interval", s.interval, "batch_size", s.batchSize, "max_retries", s.maxRetries)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("fallback recovery stopping")
			return nil
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.logger.ErrorContext(ctx, "recovery cycle failed", "error", err)
			}
		}
	}
}

// RunCycle 执行一轮补发。单条记录的失败不阻断本轮其余记录。
func (s *RecoveryService) RunCycle(ctx context.Context) error {
	records, err := s.store.ListPending(ctx, s.maxRetries, s.batchSize)
	if err != nil {
		return fmt.Errorf("list pending fallback records: %w", err)
	}

	redelivered := 0
	for _, rec := range records {
		if err := s.producer.SendRaw(ctx, rec.Topic, rec.Key, rec.Payload); err != nil {
			s.logger.WarnContext(ctx, "fallback redelivery failed",
				"record_id", rec.ID, "topic", rec.Topic, "retry_count", rec.RetryCount, "error", err)
			if markErr := s.store.MarkFailure(ctx, rec.ID, err.Error()); markErr != nil {
				s.logger.ErrorContext(ctx, "mark fallback failure failed", "record_id", rec.ID, "error", markErr)
			}
			continue
		}

		if err := s.store.MarkProcessed(ctx, rec.ID); err != nil {
			// 记录仍是 pending，下一轮会重复投递；下游按 at-least-once 容忍
			s.logger.ErrorContext(ctx, "mark fallback processed failed", "record_id", rec.ID, "error", err)
			continue
		}
		s.metrics.EventsPublished.WithLabelValues(rec.Topic).Inc()
		redelivered++
	}

	if redelivered > 0 {
		s.logger.InfoContext(ctx, "fallback records redelivered", "count", redelivered)
	}

	s.refreshGauges(ctx)
	return nil
}

// refreshGauges 更新兜底积压指标，查询失败只记日志
func (s *RecoveryService) refreshGauges(ctx context.Context) {
	if pending, err := s.store.CountPending(ctx, s.maxRetries); err == nil {
		s.metrics.FallbackPending.Set(float64(pending))
	} else {
		s.logger.WarnContext(ctx, "count pending fallback records failed", "error", err)
	}
	if failed, err := s.store.CountFailed(ctx, s.maxRetries); err == nil {
		s.metrics.FallbackFailed.Set(float64(failed))
	} else {
		s.logger.WarnContext(ctx, "count failed fallback records failed", "error", err)
	}
}

package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
	"github.com/pulsewire/notifyhub/pkg/metrics"
)

// PipelineService 入口管道：偏好过滤 → 聚合决策 → 渠道路由 → 就绪流下发 → 审计。
// 每个优先级的消费 worker 对每条事件同步走完整条管道，
// 调用方仅在 HandleEvent 返回 nil 后才提交 offset。
type PipelineService struct {
	prefs      domain.PreferenceChecker
	aggregator *Aggregator
	ready      domain.ReadyPublisher
	audit      *AuditWriter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewPipelineService 构造函数
func NewPipelineService(
	prefs domain.PreferenceChecker,
	aggregator *Aggregator,
	ready domain.ReadyPublisher,
	audit *AuditWriter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *PipelineService {
	return &PipelineService{
		prefs:      prefs,
		aggregator: aggregator,
		ready:      ready,
		audit:      audit,
		metrics:    m,
		logger:     logger,
	}
}

// HandleEvent 处理一条入口事件。偏好拦截属于有意跳过，返回 nil 以便提交 offset；
// 事件被窗口吸收时同样返回 nil，聚合结果之后由阈值冲刷或扫描器下发。
func (s *PipelineService) HandleEvent(ctx context.Context, tier string, e *domain.NotificationEvent) error {
	s.metrics.EventsConsumed.WithLabelValues(tier).Inc()
	start := time.Now()
	defer func() {
		s.metrics.PipelineDuration.WithLabelValues(tier).Observe(time.Since(start).Seconds())
	}()

	allowed, err := s.prefs.Allows(ctx, e.TargetID, e.Type)
	if err != nil {
		// 偏好查询失败放行，宁可多发不可漏发
		s.logger.WarnContext(ctx, "preference check failed, delivering anyway",
			"event_id", e.ID, "target_id", e.TargetID, "error", err)
	}
	if !allowed {
		s.audit.Record(ctx, domain.AuditEntry{
			EventID:  e.ID,
			TargetID: e.TargetID,
			Type:     e.Type,
			Outcome:  domain.AuditFilteredPrefs,
		})
		return nil
	}

	ready := s.aggregator.Decide(ctx, e)
	if ready == nil {
		return nil
	}

	return s.Dispatch(ctx, ready)
}

// Dispatch 为事件挂载渠道白名单并下发到就绪流。
// 阈值冲刷与扫描器产出的摘要事件走同一出口。
func (s *PipelineService) Dispatch(ctx context.Context, e *domain.NotificationEvent) error {
	e.AttachChannels(domain.ChannelsFor(e.Priority))

	if err := s.ready.PublishReady(ctx, e); err != nil {
		s.audit.Record(ctx, domain.AuditEntry{
			EventID:  e.ID,
			TargetID: e.TargetID,
			Type:     e.Type,
			Outcome:  domain.AuditFailed,
			Detail:   err.Error(),
		})
		return fmt.Errorf("publish ready event %s: %w", e.ID, err)
	}

	s.audit.Record(ctx, domain.AuditEntry{
		EventID:  e.ID,
		TargetID: e.TargetID,
		Type:     e.Type,
		Outcome:  domain.AuditSent,
	})
	return nil
}

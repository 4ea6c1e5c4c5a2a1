// Package messaging 提供带兜底转储的事件发布与死信主题管理。
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
	"github.com/pulsewire/notifyhub/pkg/metrics"
	"github.com/pulsewire/notifyhub/pkg/mq"
)

// Producer 底层消息发布端口
type Producer interface {
	Send(ctx context.Context, topic, key string, value any) error
}

// Publisher 受健康状态守护的事件发布器。
// broker 正常时直接发布；发布失败或 broker 处于不健康状态时，
// 事件转储到兜底存储，由补发器在 broker 恢复后重新投递。
// 距最近一次失败超过探测间隔后放行一次真实发布作为探测。
type Publisher struct {
	producer Producer
	health   *mq.HealthTracker
	fallback domain.FallbackStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewPublisher 构造函数
func NewPublisher(producer Producer, health *mq.HealthTracker, fallback domain.FallbackStore, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		health:   health,
		fallback: fallback,
		metrics:  m,
		logger:   logger,
	}
}

// Publish 将事件发布到其优先级对应的入口主题
func (p *Publisher) Publish(ctx context.Context, e *domain.NotificationEvent) error {
	return p.publish(ctx, e.Priority.IngressTopic(), e)
}

// PublishReady 将路由完毕的事件发布到就绪主题
func (p *Publisher) PublishReady(ctx context.Context, e *domain.NotificationEvent) error {
	return p.publish(ctx, domain.TopicReady, e)
}

func (p *Publisher) publish(ctx context.Context, topic string, e *domain.NotificationEvent) error {
	if !p.health.IsHealthy() {
		// broker 已知不可用，不再徒劳尝试
		return p.divert(ctx, topic, e, nil)
	}

	if err := p.producer.Send(ctx, topic, e.TargetID, e); err != nil {
		p.health.RecordFailure()
		return p.divert(ctx, topic, e, err)
	}

	p.health.RecordSuccess()
	p.metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// divert 将事件转储到兜底存储。
// 记录 ID 由事件 ID 与主题拼成，同一事件在同一环节的重复转储幂等，
// 不同环节互不遮蔽。兜底存储同样失败时返回错误，调用方保留 offset。
func (p *Publisher) divert(ctx context.Context, topic string, e *domain.NotificationEvent, cause error) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s for fallback: %w", e.ID, err)
	}

	rec := &domain.FallbackRecord{
		ID:        fmt.Sprintf("%s:%s", e.ID, topic),
		Topic:     topic,
		Key:       e.TargetID,
		Priority:  e.Priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := p.fallback.Save(ctx, rec); err != nil {
		return fmt.Errorf("save fallback record for event %s: %w", e.ID, err)
	}

	p.metrics.PublishFallbacks.Inc()
	p.logger.WarnContext(ctx, "event diverted to fallback store",
		"event_id", e.ID, "topic", topic, "error", cause)
	return nil
}

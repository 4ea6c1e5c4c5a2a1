// Package consumer 提供各 Kafka 主题的消费处理器。
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/pulsewire/notifyhub/internal/notification/application"
	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

// TierHandler 消费单个优先级入口主题并驱动入口管道。
// 返回 nil 表示消息可以提交；返回错误时调用方保留 offset 重放。
type TierHandler struct {
	pipeline *application.PipelineService
	tier     string
	logger   *slog.Logger
}

// NewTierHandler 构造函数，tier 为指标与日志使用的优先级标签
func NewTierHandler(pipeline *application.PipelineService, tier string, logger *slog.Logger) *TierHandler {
	return &TierHandler{pipeline: pipeline, tier: tier, logger: logger}
}

// Handle 实现 mq.Handler
func (h *TierHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var event domain.NotificationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 毒消息没有重放价值，记录后跳过以免堵死分区
		h.logger.ErrorContext(ctx, "skipping malformed notification event",
			"tier", h.tier, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return nil
	}
	if event.ID == "" {
		return nil
	}

	if err := h.pipeline.HandleEvent(ctx, h.tier, &event); err != nil {
		h.logger.ErrorContext(ctx, "failed to process notification event",
			"tier", h.tier, "event_id", event.ID, "error", err)
		return err
	}
	return nil
}

package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/pulsewire/notifyhub/internal/notification/application"
	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

// DeliveryHandler 消费就绪主题并执行单渠道投递。
// 每个渠道一个消费组，各自独立消费完整的就绪流。
type DeliveryHandler struct {
	delivery *application.DeliveryService
	logger   *slog.Logger
}

// NewDeliveryHandler 构造函数
func NewDeliveryHandler(delivery *application.DeliveryService, logger *slog.Logger) *DeliveryHandler {
	return &DeliveryHandler{delivery: delivery, logger: logger}
}

// Handle 实现 mq.Handler
func (h *DeliveryHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var event domain.NotificationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 毒消息没有重放价值，记录后跳过以免堵死分区
		h.logger.ErrorContext(ctx, "skipping malformed ready event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return nil
	}
	if event.ID == "" {
		return nil
	}

	if err := h.delivery.Deliver(ctx, &event); err != nil {
		h.logger.ErrorContext(ctx, "delivery interrupted, event will be replayed",
			"event_id", event.ID, "error", err)
		return err
	}
	return nil
}

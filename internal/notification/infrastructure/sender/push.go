package sender

import (
	"context"
	"log/slog"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

// PushSender 推送渠道发送器
type PushSender struct{}

// NewPushSender 创建推送发送器
func NewPushSender() *PushSender {
	return &PushSender{}
}

// Channel 实现 domain.Sender.Channel
func (s *PushSender) Channel() domain.Channel {
	return domain.ChannelPush
}

// Send 实现 domain.Sender.Send
func (s *PushSender) Send(ctx context.Context, e *domain.NotificationEvent) error {
	// 在模拟环境中通过日志输出代替真实投递
	slog.InfoContext(ctx, "sending push notification",
		"target_id", e.TargetID,
		"event_id", e.ID,
		"title", e.Title,
		"image_url", e.ImageURL,
	)
	return nil
}

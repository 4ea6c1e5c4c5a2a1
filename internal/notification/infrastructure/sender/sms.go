package sender

import (
	"context"
	"log/slog"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

// SMSSender 短信渠道发送器
type SMSSender struct {
	endpoint string
	from     string
}

// NewSMSSender 创建短信发送器
func NewSMSSender(endpoint, from string) *SMSSender {
	return &SMSSender{
		endpoint: endpoint,
		from:     from,
	}
}

// Channel 实现 domain.Sender.Channel
func (s *SMSSender) Channel() domain.Channel {
	return domain.ChannelSMS
}

// Send 实现 domain.Sender.Send
func (s *SMSSender) Send(ctx context.Context, e *domain.NotificationEvent) error {
	// 在模拟环境中通过日志输出代替真实投递
	slog.InfoContext(ctx, "sending SMS",
		"target_id", e.TargetID,
		"event_id", e.ID,
		"endpoint", s.endpoint,
		"from", s.from,
		"content_length", len(e.Message),
	)
	return nil
}

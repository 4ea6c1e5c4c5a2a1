// Package sender 提供各投递渠道的网关适配。
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

// EmailSender 邮件渠道发送器
type EmailSender struct {
	host string
	port int
	from string
}

// NewEmailSender 创建邮件发送器
func NewEmailSender(host string, port int, from string) *EmailSender {
	return &EmailSender{
		host: host,
		port: port,
		from: from,
	}
}

// Channel 实现 domain.Sender.Channel
func (s *EmailSender) Channel() domain.Channel {
	return domain.ChannelEmail
}

// Send 实现 domain.Sender.Send
func (s *EmailSender) Send(ctx context.Context, e *domain.NotificationEvent) error {
	slog.InfoContext(ctx, "sending email",
		"target_id", e.TargetID, "title", e.Title, "event_id", e.ID)

	// 企业级实现通常使用 gomail 或直接使用 net/smtp
	msg := []byte("From: " + s.from + "\r\n" +
		"To: " + e.TargetID + "\r\n" +
		"Subject: " + e.Title + "\r\n" +
		"\r\n" +
		e.Message + "\r\n")

	// 在模拟环境中通过日志输出代替真实投递
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	slog.DebugContext(ctx, "SMTP raw message", "addr", addr, "msg", string(msg))

	return nil
}

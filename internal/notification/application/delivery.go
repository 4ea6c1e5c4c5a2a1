package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
	"github.com/pulsewire/notifyhub/pkg/backoff"
	"github.com/pulsewire/notifyhub/pkg/metrics"
)

// DeliveryService 单渠道投递服务。
// 渠道白名单之外的事件直接跳过；可重试故障按退避策略重试，
// 预算耗尽后写入渠道死信主题；不可重试故障记录后立即丢弃。
type DeliveryService struct {
	sender  domain.Sender
	dlq     domain.DeadLetterSink
	retry   backoff.Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	// 广播型渠道（推送）只投递一次，失败不重试也不入死信
	fireAndForget bool
}

// NewDeliveryService 构造带重试与死信语义的投递服务（email / sms）
func NewDeliveryService(sender domain.Sender, dlq domain.DeadLetterSink, retry backoff.Config, m *metrics.Metrics, logger *slog.Logger) *DeliveryService {
	return &DeliveryService{
		sender:  sender,
		dlq:     dlq,
		retry:   retry,
		metrics: m,
		logger:  logger,
	}
}

// NewFireAndForgetDelivery 构造一次性投递服务（push）
func NewFireAndForgetDelivery(sender domain.Sender, m *metrics.Metrics, logger *slog.Logger) *DeliveryService {
	return &DeliveryService{
		sender:        sender,
		metrics:       m,
		logger:        logger,
		fireAndForget: true,
	}
}

// Deliver 投递一条就绪事件。返回错误时调用方不得提交 offset，
// 事件将被重放；返回 nil 表示事件已处理完毕（成功、跳过、入死信或丢弃）。
func (s *DeliveryService) Deliver(ctx context.Context, e *domain.NotificationEvent) error {
	channel := s.sender.Channel()
	if !e.AllowsChannel(channel) {
		return nil
	}

	if s.fireAndForget {
		if err := s.sender.Send(ctx, e); err != nil {
			s.metrics.DeliveryAttempts.WithLabelValues(string(channel), "dropped").Inc()
			s.logger.WarnContext(ctx, "fire-and-forget delivery failed",
				"event_id", e.ID, "channel", channel, "error", err)
			return nil
		}
		s.metrics.DeliveryAttempts.WithLabelValues(string(channel), "success").Inc()
		return nil
	}

	label := "deliver " + strings.ToLower(string(channel))
	err := backoff.Do(ctx, s.retry, label, func(ctx context.Context) error {
		return s.sender.Send(ctx, e)
	})
	if err == nil {
		s.metrics.DeliveryAttempts.WithLabelValues(string(channel), "success").Inc()
		return nil
	}

	if ctx.Err() != nil {
		// 停机或超时中断了重试周期，留待重放
		return err
	}

	var exhausted *backoff.ExhaustedError
	if errors.As(err, &exhausted) {
		return s.deadLetter(ctx, e, channel, exhausted)
	}

	// 不可重试故障：坏收件人、非法载荷等，重放也不会成功
	s.metrics.DeliveryAttempts.WithLabelValues(string(channel), "dropped").Inc()
	s.logger.ErrorContext(ctx, "delivery failed permanently, event dropped",
		"event_id", e.ID, "channel", channel, "outcome", "dropped", "error", err)
	return nil
}

// deadLetter 将重试耗尽的事件写入渠道死信主题。
// 死信写入失败时返回错误，事件重放后重新经历完整投递周期。
func (s *DeliveryService) deadLetter(ctx context.Context, e *domain.NotificationEvent, channel domain.Channel, exhausted *backoff.ExhaustedError) error {
	envelope := domain.NewDLQEnvelope(*e, channel, exhausted.Attempts, exhausted.Err)
	if err := s.dlq.Publish(ctx, envelope); err != nil {
		return fmt.Errorf("dead letter event %s on %s: %w", e.ID, channel, err)
	}

	s.metrics.DeadLetters.WithLabelValues(string(channel)).Inc()
	s.metrics.DeliveryAttempts.WithLabelValues(string(channel), "exhausted").Inc()
	s.logger.ErrorContext(ctx, "delivery retries exhausted, event dead lettered",
		"event_id", e.ID, "channel", channel, "attempts", exhausted.Attempts, "error", exhausted.Err)
	return nil
}

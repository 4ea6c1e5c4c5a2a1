package domain

import "context"

// EventPublisher 将事件发布到入口主题，主题由事件优先级决定
type EventPublisher interface {
	Publish(ctx context.Context, e *NotificationEvent) error
}

// ReadyPublisher 将路由完成的事件发布到就绪主题
type ReadyPublisher interface {
	PublishReady(ctx context.Context, e *NotificationEvent) error
}

// DeadLetterSink 接收重试耗尽的死信
type DeadLetterSink interface {
	Publish(ctx context.Context, env DLQEnvelope) error
}

// Sender 单渠道发送网关
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, e *NotificationEvent) error
}

// PreferenceChecker 查询接收者是否接受某类型通知
type PreferenceChecker interface {
	// Allows 查询失败时返回 (true, err)，调用方按放行处理
	Allows(ctx context.Context, targetID string, t NotificationType) (bool, error)
}

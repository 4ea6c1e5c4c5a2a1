package domain

import "context"

// WindowStore 聚合窗口的原子存储。
// 写操作必须对并发调用安全；Consume 必须保证同一窗口只被一个调用者取走。
type WindowStore interface {
	// Touch 将事件的 actor 并入窗口并刷新 TTL，返回窗口当前去重后的 actor 数
	Touch(ctx context.Context, key WindowKey, e *NotificationEvent) (int64, error)
	// Consume 原子地读出并删除窗口，窗口不存在或已被取走时返回空快照
	Consume(ctx context.Context, key WindowKey) (WindowSnapshot, error)
	// ListGeneration 列出指定代尚存的全部窗口标识
	ListGeneration(ctx context.Context, windowID int64) ([]WindowKey, error)
}

// FallbackStore 兜底事件的持久化存储
type FallbackStore interface {
	Save(ctx context.Context, rec *FallbackRecord) error
	// ListPending 按创建时间升序返回待补发记录（retryCount < maxRetries）
	ListPending(ctx context.Context, maxRetries, limit int) ([]*FallbackRecord, error)
	MarkProcessed(ctx context.Context, id string) error
	// MarkFailure 递增补发失败计数并记录原因
	MarkFailure(ctx context.Context, id, cause string) error
	CountPending(ctx context.Context, maxRetries int) (int64, error)
	CountFailed(ctx context.Context, maxRetries int) (int64, error)
}

// AuditLog 事件处理结果的审计存储
type AuditLog interface {
	Record(ctx context.Context, entries ...AuditEntry) error
}

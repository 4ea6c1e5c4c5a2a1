package domain

import "time"

// MaxFallbackRetries 兜底记录的最大补发次数，达到后进入失败桶不再补发
const MaxFallbackRetries = 5

// FallbackRecord broker 不可用时落库的待发事件
type FallbackRecord struct {
	// ID 由事件 ID 与原定主题组成，同一事件在同一阶段的重复落库天然去重
	ID string
	// Topic 原定发布主题
	Topic string
	// Key 原定分区键
	Key string
	// Priority 事件优先级，便于排查
	Priority Priority
	// Payload 已序列化的事件体，补发时原样转发
	Payload []byte
	// Processed 是否已成功补发
	Processed bool
	// RetryCount 已补发失败次数
	RetryCount int
	// LastError 最近一次失败原因
	LastError   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

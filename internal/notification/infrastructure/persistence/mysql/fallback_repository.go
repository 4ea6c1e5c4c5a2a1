// Package mysql 提供兜底存储与审计日志的 MySQL GORM 实现。
package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
	"github.com/pulsewire/notifyhub/pkg/logger"
)

// FallbackModel 兜底记录数据库模型
type FallbackModel struct {
	gorm.Model
	RecordID    string     `gorm:"column:record_id;type:varchar(96);uniqueIndex;not null"`
	Topic       string     `gorm:"column:topic;type:varchar(64);not null"`
	MessageKey  string     `gorm:"column:message_key;type:varchar(64);not null"`
	Priority    string     `gorm:"column:priority;type:varchar(10);not null"`
	Payload     []byte     `gorm:"column:payload;type:mediumblob;not null"`
	Processed   bool       `gorm:"column:processed;index:idx_pending;not null;default:false"`
	RetryCount  int        `gorm:"column:retry_count;index:idx_pending;not null;default:0"`
	LastError   string     `gorm:"column:last_error;type:text"`
	ProcessedAt *time.Time `gorm:"column:processed_at;type:datetime"`
}

// TableName 指定表名
func (FallbackModel) TableName() string {
	return "fallback_records"
}

// fallbackRepositoryImpl 是 domain.FallbackStore 接口的 GORM 实现。
type fallbackRepositoryImpl struct {
	db *gorm.DB
}

// NewFallbackRepository 创建兜底存储实例
func NewFallbackRepository(db *gorm.DB) domain.FallbackStore {
	return &fallbackRepositoryImpl{
		db: db,
	}
}

// Save 实现 domain.FallbackStore.Save。
// 按 record_id 幂等：同一事件重复转储只落一行。
func (r *fallbackRepositoryImpl) Save(ctx context.Context, rec *domain.FallbackRecord) error {
	m := &FallbackModel{
		RecordID:   rec.ID,
		Topic:      rec.Topic,
		MessageKey: rec.Key,
		Priority:   string(rec.Priority),
		Payload:    rec.Payload,
		Processed:  rec.Processed,
		RetryCount: rec.RetryCount,
		LastError:  rec.LastError,
	}
	if !rec.CreatedAt.IsZero() {
		m.CreatedAt = rec.CreatedAt
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_id"}},
		DoNothing: true,
	}).Create(m).Error
	if err != nil {
		logger.Error(ctx, "fallback_repository.Save failed", "record_id", rec.ID, "error", err)
		return fmt.Errorf("failed to save fallback record: %w", err)
	}
	return nil
}

// ListPending 实现 domain.FallbackStore.ListPending，按创建时间先进先出
func (r *fallbackRepositoryImpl) ListPending(ctx context.Context, maxRetries, limit int) ([]*domain.FallbackRecord, error) {
	var ms []FallbackModel
	err := r.db.WithContext(ctx).
		Where("processed = ? AND retry_count < ?", false, maxRetries).
		Order("created_at asc").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		logger.Error(ctx, "fallback_repository.ListPending failed", "error", err)
		return nil, fmt.Errorf("failed to list pending fallback records: %w", err)
	}

	res := make([]*domain.FallbackRecord, len(ms))
	for i, m := range ms {
		res[i] = r.toDomain(&m)
	}
	return res, nil
}

// MarkProcessed 实现 domain.FallbackStore.MarkProcessed
func (r *fallbackRepositoryImpl) MarkProcessed(ctx context.Context, id string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&FallbackModel{}).
		Where("record_id = ?", id).
		Updates(map[string]any{"processed": true, "processed_at": now}).Error
	if err != nil {
		logger.Error(ctx, "fallback_repository.MarkProcessed failed", "record_id", id, "error", err)
		return fmt.Errorf("failed to mark fallback record processed: %w", err)
	}
	return nil
}

// MarkFailure 实现 domain.FallbackStore.MarkFailure
func (r *fallbackRepositoryImpl) MarkFailure(ctx context.Context, id, cause string) error {
	err := r.db.WithContext(ctx).Model(&FallbackModel{}).
		Where("record_id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  cause,
		}).Error
	if err != nil {
		logger.Error(ctx, "fallback_repository.MarkFailure failed", "record_id", id, "error", err)
		return fmt.Errorf("failed to mark fallback record failure: %w", err)
	}
	return nil
}

// CountPending 实现 domain.FallbackStore.CountPending
func (r *fallbackRepositoryImpl) CountPending(ctx context.Context, maxRetries int) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&FallbackModel{}).
		Where("processed = ? AND retry_count < ?", false, maxRetries).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending fallback records: %w", err)
	}
	return total, nil
}

// CountFailed 实现 domain.FallbackStore.CountFailed
func (r *fallbackRepositoryImpl) CountFailed(ctx context.Context, maxRetries int) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&FallbackModel{}).
		Where("processed = ? AND retry_count >= ?", false, maxRetries).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count failed fallback records: %w", err)
	}
	return total, nil
}

func (r *fallbackRepositoryImpl) toDomain(m *FallbackModel) *domain.FallbackRecord {
	return &domain.FallbackRecord{
		ID:          m.RecordID,
		Topic:       m.Topic,
		Key:         m.MessageKey,
		Priority:    domain.Priority(m.Priority),
		Payload:     m.Payload,
		Processed:   m.Processed,
		RetryCount:  m.RetryCount,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
		ProcessedAt: m.ProcessedAt,
	}
}

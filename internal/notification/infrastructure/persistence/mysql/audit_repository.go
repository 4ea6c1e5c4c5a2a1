package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
	"github.com/pulsewire/notifyhub/pkg/logger"
)

// AuditModel 投递审计数据库模型
type AuditModel struct {
	gorm.Model
	EventID  string `gorm:"column:event_id;type:varchar(64);index;not null"`
	TargetID string `gorm:"column:target_id;type:varchar(32);index;not null"`
	Type     string `gorm:"column:type;type:varchar(20);not null"`
	Outcome  string `gorm:"column:outcome;type:varchar(20);index;not null"`
	Detail   string `gorm:"column:detail;type:text"`
}

// TableName 指定表名
func (AuditModel) TableName() string {
	return "notification_audit"
}

// auditRepositoryImpl 是 domain.AuditLog 接口的 GORM 实现。
type auditRepositoryImpl struct {
	db *gorm.DB
}

// NewAuditRepository 创建审计日志实例
func NewAuditRepository(db *gorm.DB) domain.AuditLog {
	return &auditRepositoryImpl{
		db: db,
	}
}

// Record 实现 domain.AuditLog.Record，整批一次插入
func (r *auditRepositoryImpl) Record(ctx context.Context, entries ...domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ms := make([]AuditModel, len(entries))
	for i, entry := range entries {
		ms[i] = AuditModel{
			EventID:  entry.EventID,
			TargetID: entry.TargetID,
			Type:     string(entry.Type),
			Outcome:  string(entry.Outcome),
			Detail:   entry.Detail,
		}
		if !entry.CreatedAt.IsZero() {
			ms[i].CreatedAt = entry.CreatedAt
		}
	}

	if err := r.db.WithContext(ctx).Create(&ms).Error; err != nil {
		logger.Error(ctx, "audit_repository.Record failed", "entries", len(entries), "error", err)
		return fmt.Errorf("failed to record audit entries: %w", err)
	}
	return nil
}

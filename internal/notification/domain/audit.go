package domain

import "time"

// AuditOutcome 入口管道对单个事件的处理结果
type AuditOutcome string

const (
	AuditSent          AuditOutcome = "SENT"
	AuditFilteredPrefs AuditOutcome = "FILTERED_PREFS"
	AuditFailed        AuditOutcome = "FAILED"
)

// AuditEntry 事件处理的审计记录
type AuditEntry struct {
	EventID   string
	TargetID  string
	Type      NotificationType
	Outcome   AuditOutcome
	Detail    string
	CreatedAt time.Time
}

package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

const (
	auditFlushInterval = time.Second
	auditMaxBatch      = 64
)

// AuditWriter 异步批量落盘审计记录。
// 审计是尽力而为的旁路：队列满时丢弃新记录，写库失败只记日志，
// 任何情况下都不反压主管道。
type AuditWriter struct {
	log     domain.AuditLog
	entries chan domain.AuditEntry
	logger  *slog.Logger
}

// NewAuditWriter 构造函数，buffer 为待写队列容量
func NewAuditWriter(log domain.AuditLog, buffer int, logger *slog.Logger) *AuditWriter {
	if buffer <= 0 {
		buffer = 1024
	}
	return &AuditWriter{
		log:     log,
		entries: make(chan domain.AuditEntry, buffer),
		logger:  logger,
	}
}

// Record 将审计记录入队，队列满时丢弃
func (w *AuditWriter) Record(ctx context.Context, entry domain.AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	select {
	case w.entries <- entry:
	default:
		w.logger.WarnContext(ctx, "audit queue full, entry dropped",
			"event_id", entry.EventID, "outcome", entry.Outcome)
	}
}

// Run 消费队列直到 ctx 取消，退出前排空已入队的记录
func (w *AuditWriter) Run(ctx context.Context) error {
	ticker := time.NewTicker(auditFlushInterval)
	defer ticker.Stop()

	batch := make([]domain.AuditEntry, 0, auditMaxBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		// 落盘不随停机取消，排空阶段也要写完
		if err := w.log.Record(context.WithoutCancel(ctx), batch...); err != nil {
			w.logger.Warn("audit batch write failed", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case entry := <-w.entries:
					batch = append(batch, entry)
					if len(batch) >= auditMaxBatch {
						flush()
					}
				default:
					flush()
					return nil
				}
			}
		case entry := <-w.entries:
			batch = append(batch, entry)
			if len(batch) >= auditMaxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

// Sweeper 周期性冲刷上一代残留窗口的后台任务。
// 只回看一代：从首个事件到冲刷最坏需要约两个窗口时长
// （取决于事件落在窗口内的偏移与扫描相位），这是窗口+扫描
// 两段式设计的固有属性，调窗口时长或扫描间隔时需一并权衡。
type Sweeper struct {
	aggregator *Aggregator
	pipeline   *PipelineService
	interval   time.Duration
	logger     *slog.Logger
}

// NewSweeper 构造函数
func NewSweeper(aggregator *Aggregator, pipeline *PipelineService, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		aggregator: aggregator,
		pipeline:   pipeline,
		interval:   interval,
		logger:     logger,
	}
}

// Start 启动扫描循环，阻塞直到 ctx 取消
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("window sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("window sweeper stopping")
			return nil
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep cycle failed", "error", err)
			}
		}
	}
}

// RunCycle 执行一次扫描：冲刷上一代全部窗口并逐条下发摘要。
// 单条下发失败不阻断本轮其余摘要。
func (s *Sweeper) RunCycle(ctx context.Context) error {
	previous := domain.WindowID(time.Now(), s.aggregator.Duration()) - 1

	summaries := s.aggregator.SweepGeneration(ctx, previous)
	for i := range summaries {
		if err := s.pipeline.Dispatch(ctx, &summaries[i]); err != nil {
			s.logger.ErrorContext(ctx, "dispatch swept summary failed",
				"event_id", summaries[i].ID, "target_id", summaries[i].TargetID, "error", err)
		}
	}

	if len(summaries) > 0 {
		s.logger.InfoContext(ctx, "sweep cycle flushed windows", "window_id", previous, "count", len(summaries))
	}
	return nil
}

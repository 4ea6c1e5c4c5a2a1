package mq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/pulsewire/notifyhub/pkg/logger"
)

// Handler 处理一条已拉取的消息。返回错误时该消息的 offset 不会提交，
// 消费组重平衡或重启后会重新投递。
type Handler func(ctx context.Context, msg kafka.Message) error

// ConsumerGroup 以固定数量的 reader 并行消费同一消费组。
// 每个 reader 独占分配到的分区，单分区内消息串行处理。
type ConsumerGroup struct {
	readers []*kafka.Reader
	topic   string
	group   string
	logger  *slog.Logger
}

// NewConsumerGroup 创建消费组，concurrency 为并行 reader 数量
func NewConsumerGroup(cfg *Config, topic, groupID string, concurrency int) *ConsumerGroup {
	if concurrency <= 0 {
		concurrency = 1
	}

	readers := make([]*kafka.Reader, concurrency)
	for i := range readers {
		readers[i] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        500 * time.Millisecond,
			SessionTimeout: time.Duration(cfg.SessionTimeout) * time.Millisecond,
			StartOffset:    kafka.FirstOffset,
		})
	}

	return &ConsumerGroup{
		readers: readers,
		topic:   topic,
		group:   groupID,
		logger:  logger.Get().With("topic", topic, "group", groupID),
	}
}

// Run 阻塞消费直到 ctx 取消。取消只停止拉取新消息，
// 已拉取消息的处理与提交在不受取消影响的上下文中完成。
func (g *ConsumerGroup) Run(ctx context.Context, handler Handler) error {
	g.logger.Info("consumer group started", "readers", len(g.readers))

	eg, ctx := errgroup.WithContext(ctx)
	for _, r := range g.readers {
		eg.Go(func() error {
			return g.consume(ctx, r, handler)
		})
	}
	return eg.Wait()
}

func (g *ConsumerGroup) consume(ctx context.Context, r *kafka.Reader, handler Handler) error {
	// 在途消息的处理与 offset 提交不随停机取消
	workCtx := context.WithoutCancel(ctx)

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			g.logger.Error("fetch message failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := handler(workCtx, msg); err != nil {
			g.logger.Error("handle message failed, offset not committed",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}

		if err := r.CommitMessages(workCtx, msg); err != nil {
			g.logger.Error("commit offset failed",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// Close 关闭全部 reader，阻塞中的 FetchMessage 会返回
func (g *ConsumerGroup) Close() error {
	var errs []error
	for _, r := range g.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
	"github.com/pulsewire/notifyhub/pkg/mq"
)

// TopicEnsurer 主题幂等创建端口
type TopicEnsurer interface {
	Exists(ctx context.Context, topic string) (bool, error)
	Ensure(ctx context.Context, specs ...mq.TopicSpec) error
}

// DLQEmitter 渠道死信发布器。
// 每个渠道一个死信主题，首次发布前按需创建（30 天保留期），
// 创建结果缓存在进程内；创建失败不缓存，下次发布重新尝试。
type DLQEmitter struct {
	producer    Producer
	topics      TopicEnsurer
	partitions  int
	replication int
	logger      *slog.Logger

	mu      sync.Mutex
	ensured map[domain.Channel]bool
}

// NewDLQEmitter 构造函数
func NewDLQEmitter(producer Producer, topics TopicEnsurer, partitions, replication int, logger *slog.Logger) *DLQEmitter {
	return &DLQEmitter{
		producer:    producer,
		topics:      topics,
		partitions:  partitions,
		replication: replication,
		logger:      logger,
		ensured:     make(map[domain.Channel]bool),
	}
}

// Publish 将死信信封发布到渠道对应的死信主题
func (d *DLQEmitter) Publish(ctx context.Context, env domain.DLQEnvelope) error {
	if err := d.ensureTopic(ctx, env.FailedChannel); err != nil {
		return err
	}

	topic := domain.DLQTopic(env.FailedChannel)
	if err := d.producer.Send(ctx, topic, env.Event.TargetID, env); err != nil {
		return fmt.Errorf("publish dead letter to %s: %w", topic, err)
	}
	return nil
}

func (d *DLQEmitter) ensureTopic(ctx context.Context, c domain.Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ensured[c] {
		return nil
	}

	topic := domain.DLQTopic(c)
	exists, err := d.topics.Exists(ctx, topic)
	if err != nil {
		return fmt.Errorf("check dead letter topic %s: %w", topic, err)
	}
	if !exists {
		err := d.topics.Ensure(ctx, mq.TopicSpec{
			Topic:             topic,
			Partitions:        d.partitions,
			ReplicationFactor: d.replication,
			Retention:         domain.DLQRetention,
		})
		if err != nil {
			return fmt.Errorf("create dead letter topic %s: %w", topic, err)
		}
		d.logger.InfoContext(ctx, "dead letter topic created",
			"topic", topic, "retention", domain.DLQRetention)
	}

	d.ensured[c] = true
	return nil
}

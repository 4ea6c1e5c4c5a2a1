package mq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// TopicSpec 描述需要确保存在的主题
type TopicSpec struct {
	Topic             string
	Partitions        int
	ReplicationFactor int
	// 消息保留时长，零值表示使用 broker 默认
	Retention time.Duration
}

// TopicManager 负责主题的幂等创建
type TopicManager struct {
	client *kafka.Client
}

// NewTopicManager 创建主题管理器
func NewTopicManager(cfg *Config) *TopicManager {
	return &TopicManager{
		client: &kafka.Client{
			Addr:    kafka.TCP(cfg.Brokers...),
			Timeout: 10 * time.Second,
		},
	}
}

// Exists 查询主题是否已存在
func (m *TopicManager) Exists(ctx context.Context, topic string) (bool, error) {
	resp, err := m.client.Metadata(ctx, &kafka.MetadataRequest{
		Topics: []string{topic},
	})
	if err != nil {
		return false, fmt.Errorf("metadata for topic %s: %w", topic, err)
	}
	for _, t := range resp.Topics {
		if t.Name == topic && t.Error == nil {
			return true, nil
		}
	}
	return false, nil
}

// Ensure 创建缺失的主题，主题已存在不视为错误
func (m *TopicManager) Ensure(ctx context.Context, specs ...TopicSpec) error {
	configs := make([]kafka.TopicConfig, 0, len(specs))
	for _, s := range specs {
		tc := kafka.TopicConfig{
			Topic:             s.Topic,
			NumPartitions:     s.Partitions,
			ReplicationFactor: s.ReplicationFactor,
		}
		if s.Retention > 0 {
			tc.ConfigEntries = append(tc.ConfigEntries, kafka.ConfigEntry{
				ConfigName:  "retention.ms",
				ConfigValue: strconv.FormatInt(s.Retention.Milliseconds(), 10),
			})
		}
		configs = append(configs, tc)
	}

	resp, err := m.client.CreateTopics(ctx, &kafka.CreateTopicsRequest{
		Topics: configs,
	})
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}

	for topic, topicErr := range resp.Errors {
		if topicErr != nil && !errors.Is(topicErr, kafka.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, topicErr)
		}
	}
	return nil
}

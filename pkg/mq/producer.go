// Package mq 提供 Kafka 生产者/消费者与主题管理的通用封装
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config Kafka 连接配置
type Config struct {
	// Broker 地址列表
	Brokers []string
	// 副本数
	Replication int
	// 消费者会话超时（毫秒）
	SessionTimeout int
	// 生产者内部重试次数
	MaxRetries int
	// 生产者重试退避（毫秒）
	RetryBackoff int
}

// Producer 封装 kafka-go Writer。
// 按消息 key 哈希选择分区，同一 key 的消息保持分区内有序。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建生产者
func NewProducer(cfg *Config) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
	}
	if cfg.MaxRetries > 0 {
		writer.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RetryBackoff > 0 {
		writer.WriteBackoffMin = time.Duration(cfg.RetryBackoff) * time.Millisecond
		writer.WriteBackoffMax = time.Duration(cfg.RetryBackoff) * 10 * time.Millisecond
	}
	return &Producer{writer: writer}
}

// Send 将 value 序列化为 JSON 后发送
func (p *Producer) Send(ctx context.Context, topic, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal message for topic %s: %w", topic, err)
	}
	return p.SendRaw(ctx, topic, key, payload)
}

// SendRaw 发送已序列化的消息体
func (p *Producer) SendRaw(ctx context.Context, topic, key string, payload []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to topic %s: %w", topic, err)
	}
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}

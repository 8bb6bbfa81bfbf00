// Package messaging 提供账本事件的 Kafka 发布实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/polyarb/internal/ledger/domain"
	"github.com/wyfcoding/polyarb/pkg/logger"
)

// Config Kafka 发布配置
type Config struct {
	Brokers      []string
	Topic        string
	MaxRetries   int
	RetryBackoff int
}

// KafkaEventPublisher domain.EventPublisher 的 Kafka 实现
type KafkaEventPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaEventPublisher 创建 Kafka 事件发布者
func NewKafkaEventPublisher(cfg Config) *KafkaEventPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxRetries,
		WriteBackoffMin:        time.Duration(cfg.RetryBackoff) * time.Millisecond,
		WriteBackoffMax:        time.Duration(cfg.RetryBackoff*10) * time.Millisecond,
	}

	logger.Info(context.Background(), "Kafka event publisher created", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &KafkaEventPublisher{writer: writer, topic: cfg.Topic}
}

// PublishIntentRecorded 发布意向已记录事件
func (p *KafkaEventPublisher) PublishIntentRecorded(ctx context.Context, event domain.IntentRecordedEvent) error {
	return p.publish(ctx, event.IntentID, "intent.recorded", event)
}

// PublishIntentStatusChanged 发布意向状态变更事件
func (p *KafkaEventPublisher) PublishIntentStatusChanged(ctx context.Context, event domain.IntentStatusChangedEvent) error {
	return p.publish(ctx, event.IntentID, "intent.status_changed", event)
}

// Close 关闭底层 writer
func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaEventPublisher) publish(ctx context.Context, key, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error(ctx, "Failed to publish ledger event",
			"topic", p.topic,
			"event_type", eventType,
			"key", key,
			"error", err,
		)
		return err
	}

	logger.Debug(ctx, "Ledger event published", "topic", p.topic, "event_type", eventType, "key", key)
	return nil
}

// NoopEventPublisher 事件发布的空实现，Kafka 未配置时的降级方案
type NoopEventPublisher struct{}

// PublishIntentRecorded 空实现
func (NoopEventPublisher) PublishIntentRecorded(ctx context.Context, event domain.IntentRecordedEvent) error {
	return nil
}

// PublishIntentStatusChanged 空实现
func (NoopEventPublisher) PublishIntentStatusChanged(ctx context.Context, event domain.IntentStatusChangedEvent) error {
	return nil
}

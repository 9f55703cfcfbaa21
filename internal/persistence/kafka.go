package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

// EventProducer writes ticket events to a Kafka topic. Without brokers every
// method is a no-op.
type EventProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewEventProducer creates the producer.
func NewEventProducer(cfg config.KafkaConfig, logger *zap.Logger) *EventProducer {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return &EventProducer{logger: logger}
	}
	return &EventProducer{
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				logger.Sugar().Warnf("kafka: "+msg, args...)
			}),
		},
	}
}

// Enabled reports whether brokers are configured.
func (p *EventProducer) Enabled() bool {
	return p != nil && p.writer != nil
}

// Produce encodes value as JSON and writes it keyed by key, so events of one
// ticket stay ordered within a partition.
func (p *EventProducer) Produce(ctx context.Context, key string, value any) error {
	if !p.Enabled() {
		return nil
	}
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body})
}

// Close flushes and closes the writer.
func (p *EventProducer) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.writer.Close()
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher writes keyed JSON events to a topic.
type Publisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
	Close() error
}

type kafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaPublisher builds a synchronous Kafka writer for the given topic.
// An empty broker list yields a no-op publisher so local setups run without Kafka.
func NewKafkaPublisher(brokers []string, topic string, writeTimeout time.Duration, logger *zap.Logger) Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(brokers) == 0 || topic == "" {
		logger.Info("kafka disabled, enrollment events will be dropped")
		return NopPublisher{}
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		ErrorLogger:  kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
	}
	logger.Info("kafka publisher initialised", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return &kafkaPublisher{writer: writer, timeout: writeTimeout, logger: logger}
}

func (p *kafkaPublisher) Publish(ctx context.Context, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		p.logger.Error("failed to publish event", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("publish event: %w", err)
	}
	p.logger.Debug("event published", zap.String("key", key))
	return nil
}

func (p *kafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

func (NopPublisher) Close() error { return nil }

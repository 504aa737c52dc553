// Package kafka delivers outbox messages to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"stockledger/internal/infrastructure/storage/postgres"
)

// Header names set on every published message.
const (
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderMessageID     = "message_id"
)

// MessageWriter is the part of kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ postgres.OutboxHandler = (*Publisher)(nil)

// Publisher implements postgres.OutboxHandler on top of a Kafka writer.
// Messages are keyed by aggregate id so events of one stock record stay ordered.
type Publisher struct {
	writer     MessageWriter
	propagator propagation.TextMapPropagator
}

// WriterConfig configures NewWriter.
type WriterConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// NewWriter builds a kafka.Writer with hash balancing on the message key.
func NewWriter(cfg WriterConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
}

// NewPublisher creates a publisher. Trace context is propagated with the global propagator.
func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer, propagator: otel.GetTextMapPropagator()}
}

// Handle writes one outbox message.
func (p *Publisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	km := kafka.Message{
		Key:   []byte(msg.AggregateID.String()),
		Value: msg.Payload,
		Time:  msg.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(msg.EventType)},
			{Key: HeaderAggregateType, Value: []byte(msg.AggregateType)},
			{Key: HeaderMessageID, Value: []byte(msg.ID.String())},
		},
	}
	p.propagator.Inject(ctx, (*headerCarrier)(&km))

	if err := p.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("write %s to kafka: %w", msg.EventType, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// headerCarrier adapts kafka message headers to propagation.TextMapCarrier.
type headerCarrier kafka.Message

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range c.Headers {
		if h.Key == key {
			c.Headers[i].Value = []byte(value)
			return
		}
	}
	c.Headers = append(c.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(c.Headers))
	for i, h := range c.Headers {
		keys[i] = h.Key
	}
	return keys
}

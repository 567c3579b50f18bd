// Package events publishes transaction status changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/gateway-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/telemetry"
)

const DefaultTopic = "payment.transaction.status_changed"

// batchTimeout caps how long a partial batch waits before it is flushed.
const batchTimeout = 10 * time.Millisecond

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
}

var _ interfaces.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// NewKafkaWriter builds a writer for the status topic. Messages are keyed by
// order_id, so the hash balancer keeps one order's events on one partition.
// Writes are asynchronous and delivery failures are only logged, so a slow or
// unreachable broker never holds up a request.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           batchTimeout,
		Async:                  true,
		Completion:             logDeliveryFailure,
	}
}

func logDeliveryFailure(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, msg := range messages {
		telemetry.Logger.Warn("Status event delivery failed",
			zap.String("order_id", string(msg.Key)),
			zap.Error(err),
		)
	}
}

func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, event models.StatusChangedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("status_changed")},
		},
	})
	if err != nil {
		return fmt.Errorf("write status event: %w", err)
	}

	telemetry.Logger.Debug("Published status event",
		zap.String("order_id", event.OrderID),
		zap.String("status", string(event.Status)),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishStatusChanged(context.Context, models.StatusChangedEvent) error {
	return nil
}

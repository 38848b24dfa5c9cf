package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rongwang/tally-server/internal/models"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each change as a JSON message keyed by ledger id,
// so a ledger's changes land on one partition in order.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher creates a publisher writing to topic on brokers. The
// writer is asynchronous: Publish only enqueues, and delivery failures are
// reported to logger.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion:   completionLogger(logger),
	})
}

func completionLogger(logger *slog.Logger) func([]kafka.Message, error) {
	return func(messages []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range messages {
			logger.Warn("failed to deliver change", "ledger", string(m.Key), "error", err)
		}
	}
}

// NewKafkaPublisherWithWriter wraps an existing writer
func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish writes one change record
func (p *KafkaPublisher) Publish(ctx context.Context, change models.Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("error encoding change %s: %w", change.ID, err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(change.LedgerID),
		Value: data,
		Time:  change.Timestamp,
		Headers: []kafka.Header{
			{Key: "entity-kind", Value: []byte(change.EntityKind)},
			{Key: "action", Value: []byte(change.Action)},
		},
	})
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

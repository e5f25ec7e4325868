// Package kafka publishes execution events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/papercomputeco/relay/pkg/eventstream"
)

// Config configures the Kafka publisher.
type Config struct {
	// Brokers is the list of bootstrap brokers. Required.
	Brokers []string

	// Topic is the destination topic. Required.
	Topic string

	// WriteTimeout bounds a single write (defaults to 10s).
	WriteTimeout time.Duration

	// MaxAttempts bounds delivery retries (defaults to 3).
	MaxAttempts int

	// BatchTimeout is how long a write waits for more messages before the
	// batch is flushed (defaults to DefaultBatchTimeout). Writes are
	// synchronous, so this bounds the latency of every publish.
	BatchTimeout time.Duration
}

// DefaultBatchTimeout replaces kafka-go's one second default, which would
// hold each worker's publish for up to a second.
const DefaultBatchTimeout = 10 * time.Millisecond

// Publisher writes events to Kafka, keyed by session id so one session's
// events stay ordered within a partition.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka publisher. No connection is made until the
// first publish.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(c.Brokers...),
			Topic:                  c.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			MaxAttempts:            c.MaxAttempts,
			WriteTimeout:           c.WriteTimeout,
			BatchTimeout:           c.BatchTimeout,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// EncodeMessage converts an event into a Kafka message.
func EncodeMessage(event *eventstream.ExecutionEvent) (kafka.Message, error) {
	if event == nil {
		return kafka.Message{}, eventstream.ErrNilExecutionEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling execution event: %w", err)
	}

	key := event.Attempt.SessionID
	if key == "" {
		key = event.Attempt.BackendID
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
	}, nil
}

// PublishExecution writes one event synchronously.
func (p *Publisher) PublishExecution(ctx context.Context, event *eventstream.ExecutionEvent) error {
	msg, err := EncodeMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing to kafka topic %s: %w", p.writer.Topic, err)
	}
	return nil
}

// Stats returns the writer's configuration and counters since the last call.
func (p *Publisher) Stats() kafka.WriterStats {
	return p.writer.Stats()
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Package kafka relays cache invalidation events between API instances through a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"org-access-core/backend/internal/cache"
)

// writeTimeout bounds a single publish so a slow broker does not hold up the request that
// committed the write.
const writeTimeout = 5 * time.Second

// MessageWriter is the subset of *kafka.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements cache.Publisher by writing events to a Kafka topic.
type Publisher struct {
	writer MessageWriter
	log    *zap.Logger
}

var _ cache.Publisher = (*Publisher)(nil)

// NewPublisher returns a Publisher for topic. Returns nil when brokers or topic are empty.
func NewPublisher(brokers []string, topic string, log *zap.Logger) *Publisher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}, log)
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{writer: w, log: log}
}

// Publish serializes ev as JSON. Messages are keyed by audience session so one session's events
// stay ordered on a single partition.
func (p *Publisher) Publish(ctx context.Context, ev cache.Event) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	msg := kafka.Message{Key: []byte(ev.Audience.SessionID), Value: payload}
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		p.log.Warn("cache: kafka publish failed", zap.String("mutation", ev.Mutation), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the writer. Safe on a nil Publisher.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"org-access-core/backend/internal/cache"
)

// MessageReader is the subset of *kafka.Reader used by Relay.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Relay reads invalidation events from Kafka and publishes them on the local hub.
type Relay struct {
	reader  MessageReader
	local   cache.Publisher
	log     *zap.Logger
	backoff time.Duration
}

// NewReader returns a reader in its own consumer group so every instance receives every event.
// Reading starts at the newest offset; events older than the instance are irrelevant to it.
func NewReader(brokers []string, topic, groupPrefix, instanceID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupPrefix + "-" + instanceID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     250 * time.Millisecond,
	})
}

// NewRelay returns a Relay delivering to local.
func NewRelay(reader MessageReader, local cache.Publisher, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{reader: reader, local: local, log: log, backoff: time.Second}
}

// Run relays until ctx is cancelled or the reader is closed. After a read error the local hub is
// sent a reset, since events may have been missed.
func (r *Relay) Run(ctx context.Context) error {
	defer r.reader.Close()
	for {
		msg, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			r.log.Warn("cache: kafka relay read failed", zap.Error(err))
			_ = r.local.Publish(ctx, cache.ResetEvent())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.backoff):
			}
			continue
		}
		var ev cache.Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			r.log.Warn("cache: kafka relay dropped malformed event", zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}
		if err := r.local.Publish(ctx, ev); err != nil {
			r.log.Warn("cache: local publish failed", zap.String("mutation", ev.Mutation), zap.Error(err))
		}
	}
}

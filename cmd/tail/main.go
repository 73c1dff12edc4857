// tail follows the cache invalidation topic and logs every event. It joins its own consumer
// group, so it never takes partitions from API instances.
// Set KAFKA_BROKERS and optionally CACHE_KAFKA_TOPIC.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"org-access-core/backend/internal/cache"
	cachekafka "org-access-core/backend/internal/cache/kafka"
	"org-access-core/backend/internal/config"
	"org-access-core/backend/internal/logging"
)

// logPublisher writes relayed events to the log instead of a hub.
type logPublisher struct {
	log *zap.Logger
}

func (p logPublisher) Publish(ctx context.Context, ev cache.Event) error {
	targets := make([]string, len(ev.Targets))
	for i, t := range ev.Targets {
		targets[i] = t.String()
	}
	p.log.Info("invalidation",
		zap.String("id", ev.ID),
		zap.String("mutation", ev.Mutation),
		zap.Strings("targets", targets),
		zap.String("session_id", ev.Audience.SessionID),
		zap.String("org_id", ev.Audience.OrgID),
		zap.Time("at", ev.At))
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		logger.Fatal("tail: KAFKA_BROKERS is required")
	}

	reader := cachekafka.NewReader(brokers, cfg.CacheKafkaTopic, cfg.KafkaGroupID+"-tail", uuid.NewString())
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("tail: following invalidations", zap.String("topic", cfg.CacheKafkaTopic), zap.Strings("brokers", brokers))
	if err := cachekafka.NewRelay(reader, logPublisher{log: logger}, logger).Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("tail: relay stopped", zap.Error(err))
	}
	logger.Info("tail: stopped")
}

package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/redis"
)

// FromConfig builds a Notifier with a sink for every enabled backend. The
// returned closer releases their connections.
func FromConfig(ctx context.Context, cfg *config.Config) (*Notifier, io.Closer, error) {
	var (
		sinks   []Sink
		closers closerList
	)
	if cfg.Kafka.Enabled {
		p := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		closers = append(closers, p)
		sinks = append(sinks, NewKafkaSink(p))
	}
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			closers.Close()
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		closers = append(closers, db)
		sinks = append(sinks, NewPostgresSink(db))
	}
	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			closers.Close()
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		closers = append(closers, rc)
		sinks = append(sinks, NewRedisSink(rc, cfg.Redis.LatestReportKey, cfg.Redis.InvalidatePattern, cfg.Redis.ReportTTL))
	}
	return NewNotifier(cfg.Notify, sinks...), closers, nil
}

type closerList []io.Closer

func (cl closerList) Close() error {
	var first error
	for i := len(cl) - 1; i >= 0; i-- {
		if err := cl[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

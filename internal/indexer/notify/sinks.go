package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/resilience"
)

type publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaSink publishes the report keyed by output path, so reports for the
// same index land on one partition in order.
type KafkaSink struct {
	producer publisher
}

func NewKafkaSink(p publisher) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, r Report) error {
	return s.producer.Publish(ctx, kafka.Event{Key: r.OutputPath, Value: r})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresSink appends each report to a history table:
//
//	CREATE TABLE index_builds (
//	    id          BIGSERIAL PRIMARY KEY,
//	    data        JSONB NOT NULL,
//	    finished_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresSink struct {
	db  execer
	now func() time.Time
}

func NewPostgresSink(db execer) *PostgresSink {
	return &PostgresSink{db: db, now: time.Now}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Publish(ctx context.Context, r Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("marshaling report: %w", err))
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO index_builds (data, finished_at) VALUES ($1, $2)`,
		data, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving build report: %w", err)
	}
	return nil
}

type cache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// RedisSink stores the report under a fixed key and drops cached search
// results, which were computed against the previous index.
type RedisSink struct {
	cache      cache
	key        string
	invalidate string
	ttl        time.Duration
}

func NewRedisSink(c cache, key, invalidatePattern string, ttl time.Duration) *RedisSink {
	return &RedisSink{cache: c, key: key, invalidate: invalidatePattern, ttl: ttl}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, r Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("marshaling report: %w", err))
	}
	if err := s.cache.Set(ctx, s.key, data, s.ttl); err != nil {
		return fmt.Errorf("storing %s: %w", s.key, err)
	}
	if s.invalidate == "" {
		return nil
	}
	if _, err := s.cache.FlushByPattern(ctx, s.invalidate); err != nil {
		return fmt.Errorf("invalidating %s: %w", s.invalidate, err)
	}
	return nil
}

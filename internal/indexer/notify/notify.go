// Package notify announces finished builds to downstream systems: a Kafka
// topic, a Postgres history table and a Redis cache. Delivery is best effort;
// a failed notification never affects the index that was written.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/resilience"
)

// Report describes one completed build.
type Report struct {
	BuildID    string        `json:"build_id"`
	OutputPath string        `json:"output_path"`
	Mode       string        `json:"mode"`
	Documents  int64         `json:"documents"`
	Words      int64         `json:"words"`
	Terms      int64         `json:"terms"`
	Segments   int64         `json:"segments"`
	Merges     int           `json:"merges"`
	SizeBytes  int64         `json:"size_bytes"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// Sink delivers a report to one external system.
type Sink interface {
	Name() string
	Publish(ctx context.Context, r Report) error
}

type Notifier struct {
	sinks   []Sink
	timeout time.Duration
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

func NewNotifier(cfg config.NotifyConfig, sinks ...Sink) *Notifier {
	return &Notifier{
		sinks:   sinks,
		timeout: cfg.Timeout,
		retry:   resilience.RetryConfig{MaxAttempts: cfg.MaxAttempts},
		logger:  slog.Default().With("component", "notify"),
	}
}

// withRetry overrides the backoff schedule.
func (n *Notifier) withRetry(rc resilience.RetryConfig) *Notifier {
	n.retry = rc
	return n
}

// Notify publishes r to every sink. Each sink gets its own timeout per
// attempt. Failures are logged and returned together.
func (n *Notifier) Notify(ctx context.Context, r Report) error {
	var errs []error
	for _, s := range n.sinks {
		err := resilience.Retry(ctx, s.Name(), n.retry, func(ctx context.Context) error {
			return resilience.WithTimeout(ctx, n.timeout, s.Name(), func(ctx context.Context) error {
				return s.Publish(ctx, r)
			})
		})
		if err != nil {
			n.logger.Error("build report not delivered",
				"sink", s.Name(),
				"build_id", r.BuildID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.Info("build report delivered", "sink", s.Name(), "build_id", r.BuildID)
	}
	return errors.Join(errs...)
}

// Len returns the number of configured sinks.
func (n *Notifier) Len() int {
	return len(n.sinks)
}

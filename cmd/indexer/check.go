package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/tmpdir"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/redis"
)

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "verify the output directory and the enabled report sinks before a build",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "directory for index.dat and temporary segments",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Second,
				Usage: "limit for each individual check",
			},
		},
		Action: runCheck,
	}
}

func runCheck(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("output") {
		cfg.Indexer.OutputDir = c.String("output")
	}

	report := newChecker(cfg, c.Duration("timeout")).Run(c.Context)
	if err := report.WriteJSON(c.App.Writer); err != nil {
		return err
	}
	if report.Status != health.StatusUp {
		return fmt.Errorf("preflight check failed")
	}
	return nil
}

func newChecker(cfg *config.Config, timeout time.Duration) *health.Checker {
	checker := health.NewChecker(timeout)
	checker.Register("output_dir", func(context.Context) error {
		return checkOutputDir(cfg.Indexer)
	})
	if cfg.Kafka.Enabled {
		checker.Register("kafka", func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka)
		})
	}
	if cfg.Postgres.Enabled {
		checker.Register("postgres", func(ctx context.Context) error {
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			return db.Close()
		})
	}
	if cfg.Redis.Enabled {
		checker.Register("redis", func(ctx context.Context) error {
			rc, err := redis.NewClient(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			return rc.Close()
		})
	}
	return checker
}

// checkOutputDir creates and removes one temp file the way a build would.
func checkOutputDir(ic config.IndexerConfig) error {
	if err := os.MkdirAll(ic.OutputDir, 0o755); err != nil {
		return err
	}
	path, f, err := tmpdir.New(ic.OutputDir, ic.TempMaxAttempts).Create()
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(path)
}

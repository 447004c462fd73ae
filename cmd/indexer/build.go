package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/notify"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/metrics"
)

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "index the given files and directories into index.dat",
		ArgsUsage: "PATH...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "single-threaded",
				Aliases: []string{"1"},
				Usage:   "do all the work on one goroutine",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "directory for index.dat and temporary segments",
			},
			&cli.Int64Flag{
				Name:  "large-threshold",
				Usage: "words held in memory before a segment is flushed",
			},
			&cli.IntFlag{
				Name:  "fan-in",
				Usage: "segments combined by one merge step",
			},
		},
		Action: runBuild,
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func runBuild(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("single-threaded") {
		cfg.Indexer.SingleThreaded = true
	}
	if c.IsSet("output") {
		cfg.Indexer.OutputDir = c.String("output")
	}
	if c.IsSet("large-threshold") {
		cfg.Indexer.LargeThreshold = c.Int64("large-threshold")
	}
	if c.IsSet("fan-in") {
		cfg.Indexer.FanIn = c.Int("fan-in")
	}
	if err := cfg.Validate(); err != nil {
		return apperrors.New(apperrors.ErrInvalidInput, apperrors.ExitInvalidInput, err.Error())
	}
	if c.NArg() == 0 {
		return apperrors.New(apperrors.ErrInvalidInput, apperrors.ExitInvalidInput,
			"usage: indexer build [--single-threaded] [--output DIR] PATH...")
	}

	documents, err := indexer.ExpandPaths(c.Args().Slice())
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg)
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(ctx)
		}()
	}

	engine, err := indexer.NewEngine(cfg.Indexer, m)
	if err != nil {
		return err
	}
	report, err := engine.Build(c.Context, documents)
	if err != nil {
		return err
	}

	announce(c.Context, cfg, report)
	fmt.Fprintln(c.App.Writer, report.OutputPath)
	return nil
}

// announce delivers the report to the configured sinks. The index is already
// in place, so failures here are only logged.
func announce(ctx context.Context, cfg *config.Config, report *notify.Report) {
	notifier, closer, err := notify.FromConfig(ctx, cfg)
	if err != nil {
		slog.Warn("build report sinks unavailable", "error", err)
		return
	}
	defer closer.Close()
	if notifier.Len() == 0 {
		return
	}
	if err := notifier.Notify(ctx, *report); err != nil {
		slog.Warn("build report partially delivered", "error", err)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "indexer: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "indexer",
		Usage: "build and inspect on-disk inverted indexes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error; overrides the config file",
			},
		},
		Commands: []*cli.Command{
			buildCommand(),
			inspectCommand(),
			checkCommand(),
		},
		HideHelpCommand: true,
	}
}

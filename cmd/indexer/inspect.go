package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/errors"
)

var errLimitReached = errors.New("limit reached")

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "list the terms of an index or segment file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "stop after this many terms (0 lists all)",
			},
			&cli.BoolFlag{
				Name:  "postings",
				Usage: "also print the raw posting words of each term",
			},
		},
		Action: runInspect,
	}
}

func runInspect(c *cli.Context) error {
	if _, err := loadConfig(c); err != nil {
		return err
	}
	if c.NArg() != 1 {
		return apperrors.New(apperrors.ErrInvalidInput, apperrors.ExitInvalidInput,
			"usage: indexer inspect [--limit N] FILE")
	}
	path := c.Args().First()
	limit := c.Int("limit")
	showPostings := c.Bool("postings")

	tw := tabwriter.NewWriter(c.App.Writer, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TERM\tDF\tBYTES")
	n := 0
	err := segment.Walk(path, func(e segment.Entry, postings []byte) error {
		if limit > 0 && n == limit {
			return errLimitReached
		}
		n++
		if !showPostings {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", e.Term, e.DocFreq, e.Length)
			return nil
		}
		words, err := index.Words(postings)
		if err != nil {
			return apperrors.Corruptf("%s: %v", e.Term, err)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%v\n", e.Term, e.DocFreq, e.Length, words)
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		return err
	}
	return tw.Flush()
}

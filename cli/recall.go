package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/kioku-ai/kioku/memory"
)

func recallCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		topK      int64
		threshold float64
		topics    []string
		since     string
		until     string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Restrict results to one session",
			Sources:     cli.EnvVars("KIOKU_SESSION"),
			Destination: &sessionID,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"k"},
			Usage:       "Maximum number of results (0 uses the configured default)",
			Destination: &topK,
		},
		&cli.FloatFlag{
			Name:        "min-similarity",
			Usage:       "Minimum cosine similarity (0 uses the configured default)",
			Destination: &threshold,
		},
		&cli.StringSliceFlag{
			Name:        "topic",
			Usage:       "Keep only records carrying this topic (repeatable, OR-combined)",
			Destination: &topics,
		},
		&cli.StringFlag{
			Name:        "since",
			Usage:       "Inclusive lower timestamp bound (RFC3339 or YYYY-MM-DD)",
			Destination: &since,
		},
		&cli.StringFlag{
			Name:        "until",
			Usage:       "Inclusive upper timestamp bound (RFC3339 or YYYY-MM-DD)",
			Destination: &until,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "recall",
		Usage:     "Retrieve memories relevant to a query",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")

			opts := memory.QueryOptions{
				SessionID:           sessionID,
				TopK:                int(topK),
				SimilarityThreshold: threshold,
				Topics:              topics,
			}

			var err error
			if opts.Since, err = parseTimeBound(since); err != nil {
				return err
			}
			if opts.Until, err = parseTimeBound(until); err != nil {
				return err
			}

			ctx, err = cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			mgr, err := cfg.newManager(ctx)
			if err != nil {
				return err
			}

			records, err := mgr.RetrieveMemories(ctx, query, opts)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintln(c.Root().Writer, "No memories found")
				return nil
			}

			for i, rec := range records {
				fmt.Fprintf(c.Root().Writer, "%d. [%s] %s: %s\n",
					i+1,
					rec.Timestamp.Format("2006-01-02 15:04:05"),
					rec.Speaker,
					rec.Text,
				)
				if len(rec.Topics) > 0 {
					fmt.Fprintf(c.Root().Writer, "   topics: %s\n", strings.Join(rec.Topics, ", "))
				}
			}
			return nil
		},
	}
}

func parseTimeBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts, nil
	}
	return time.Time{}, goerr.New("malformed time bound, want RFC3339 or YYYY-MM-DD",
		goerr.T(memory.TagInvalidInput), goerr.V("value", s))
}

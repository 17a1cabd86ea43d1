package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kioku-ai/kioku/logging"
)

func cleanupCommand() *cli.Command {
	var (
		cfg  config
		days int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "days",
			Usage:       "Keep records newer than this many days",
			Value:       90,
			Sources:     cli.EnvVars("KIOKU_CLEANUP_DAYS"),
			Destination: &days,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete old low-importance memories",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			mgr, err := cfg.newManager(ctx)
			if err != nil {
				return err
			}

			// Cleanup is best-effort: a failed pass is logged and
			// reported as zero deletions, never a process failure.
			count, err := mgr.CleanupOldMemories(ctx, int(days))
			if err != nil {
				logging.From(ctx).Error("memory cleanup failed", "days", days, "error", err)
				count = 0
			}

			fmt.Fprintf(c.Root().Writer, "Deleted %d memories\n", count)
			return nil
		},
	}
}

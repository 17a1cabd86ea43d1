package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/kioku-ai/kioku/memory"
)

func rememberCommand() *cli.Command {
	var (
		cfg            config
		sessionID      string
		speaker        string
		importance     float64
		topics         []string
		keywords       []string
		projectContext string
		personaContext string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Session id; created implicitly when absent or empty",
			Sources:     cli.EnvVars("KIOKU_SESSION"),
			Destination: &sessionID,
		},
		&cli.StringFlag{
			Name:        "speaker",
			Usage:       "Speaker tag, conventionally user or assistant",
			Value:       "user",
			Destination: &speaker,
		},
		&cli.FloatFlag{
			Name:        "importance",
			Usage:       "Importance score in [0,1]; low-importance records are eligible for cleanup",
			Value:       0.5,
			Destination: &importance,
		},
		&cli.StringSliceFlag{
			Name:        "topic",
			Usage:       "Topic tag (repeatable)",
			Destination: &topics,
		},
		&cli.StringSliceFlag{
			Name:        "keyword",
			Usage:       "Keyword tag (repeatable)",
			Destination: &keywords,
		},
		&cli.StringFlag{
			Name:        "project-context",
			Usage:       "Opaque project context string",
			Destination: &projectContext,
		},
		&cli.StringFlag{
			Name:        "persona-context",
			Usage:       "Opaque persona context string",
			Destination: &personaContext,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "remember",
		Usage:     "Store an utterance as a memory record",
		ArgsUsage: "<text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			text := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return goerr.New("text argument is required", goerr.T(memory.TagInvalidInput))
			}
			if importance < 0 || importance > 1 {
				return goerr.New("importance must be in [0,1]",
					goerr.T(memory.TagInvalidInput), goerr.V("importance", importance))
			}

			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			mgr, err := cfg.newManager(ctx)
			if err != nil {
				return err
			}

			session, err := mgr.EnsureSession(ctx, sessionID)
			if err != nil {
				return err
			}

			rec := memory.NewMemoryRecord(text, session.SessionID, speaker)
			rec.ImportanceScore = importance
			rec.Topics = topics
			rec.Keywords = keywords
			rec.ProjectContext = projectContext
			rec.PersonaContext = personaContext

			id, err := mgr.StoreMemory(ctx, rec)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "%s (session %s)\n", id, session.SessionID)
			return nil
		},
	}
}

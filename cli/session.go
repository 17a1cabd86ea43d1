package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/kioku-ai/kioku/memory"
)

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Manage conversation sessions",
		Commands: []*cli.Command{
			sessionCreateCommand(),
			sessionListCommand(),
			sessionCloseCommand(),
		},
	}
}

func sessionCreateCommand() *cli.Command {
	var (
		cfg         config
		sessionID   string
		title       string
		description string
		personaID   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Session id; generated when omitted",
			Destination: &sessionID,
		},
		&cli.StringFlag{
			Name:        "title",
			Aliases:     []string{"t"},
			Usage:       "Session title",
			Required:    true,
			Destination: &title,
		},
		&cli.StringFlag{
			Name:        "description",
			Usage:       "Session description",
			Destination: &description,
		},
		&cli.StringFlag{
			Name:        "persona",
			Usage:       "Persona id attached to the session",
			Destination: &personaID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "create",
		Usage: "Create a new conversation session",
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

			var session *memory.ConversationSession
			if sessionID == "" {
				session, err = mgr.EnsureSession(ctx, "")
			} else {
				session, err = mgr.CreateSession(ctx, sessionID, title, description, personaID)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, session.SessionID)
			return nil
		},
	}
}

func sessionListCommand() *cli.Command {
	var (
		cfg config
		all bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "all",
			Aliases:     []string{"a"},
			Usage:       "Include deactivated sessions",
			Destination: &all,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List sessions ordered by recent activity",
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

			sessions := mgr.ListSessions(!all)
			if len(sessions) == 0 {
				fmt.Fprintln(c.Root().Writer, "No sessions found")
				return nil
			}

			for _, s := range sessions {
				state := "active"
				if !s.IsActive {
					state = "closed"
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%d messages\t%s\t%s\n",
					s.SessionID,
					s.Title,
					s.MessageCount,
					s.LastActivity.Format("2006-01-02 15:04:05"),
					state,
				)
			}
			return nil
		},
	}
}

func sessionCloseCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "close",
		Usage:     "Deactivate a session (sessions are never hard-deleted)",
		ArgsUsage: "<session-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			sessionID := c.Args().First()
			if sessionID == "" {
				return goerr.New("session id argument is required", goerr.T(memory.TagInvalidInput))
			}

			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			mgr, err := cfg.newManager(ctx)
			if err != nil {
				return err
			}

			if err := mgr.DeactivateSession(ctx, sessionID); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Session %s closed\n", sessionID)
			return nil
		},
	}
}

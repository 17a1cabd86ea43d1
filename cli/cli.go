// Package cli is the consumer-facing command surface of the memory
// substrate.
package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "kioku",
		Usage: "Semantic memory store for conversational agents",
		Commands: []*cli.Command{
			rememberCommand(),
			recallCommand(),
			sessionCommand(),
			cleanupCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

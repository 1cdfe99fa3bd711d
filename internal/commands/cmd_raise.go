package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/endpoint"
	"github.com/hay-kot/deskbus/internal/printer"
)

type RaiseCmd struct {
	flags   *Flags
	client  clientFlags
	context string
	asJSON  bool
}

// NewRaiseCmd creates a new raise command
func NewRaiseCmd(flags *Flags) *RaiseCmd {
	return &RaiseCmd{flags: flags}
}

// Register adds the raise command to the application
func (cmd *RaiseCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "raise",
		Usage:     "Raise an intent",
		UsageText: "deskbus raise <intent> --context '{\"type\":\"fdc3.instrument\",\"id\":{\"ticker\":\"AAPL\"}}'",
		Description: `Delivers an intent to exactly one handler.

When several running endpoints or directory applications can handle the
intent, the broker asks for a choice. On a terminal the choice is prompted
for; otherwise the first candidate is used.

The context may be inline JSON, @file, or @- for stdin.`,
		Flags: append(cmd.client.flags(),
			&cli.StringFlag{
				Name:        "context",
				Usage:       "context JSON, @file or @-",
				Required:    true,
				Destination: &cmd.context,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output the resolution as JSON",
				Destination: &cmd.asJSON,
			},
		),
		Action: cmd.run,
	})

	return app
}

func (cmd *RaiseCmd) run(ctx context.Context, c *cli.Command) error {
	intent := c.Args().First()
	if intent == "" {
		return fmt.Errorf("intent name required")
	}

	payload, err := parseContext(cmd.context)
	if err != nil {
		return err
	}

	s, err := connect(ctx, cmd.flags, cmd.client, endpoint.Options{Resolver: promptResolver()})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	res, err := s.RaiseIntent(ctx, intent, payload)
	if err != nil {
		return fmt.Errorf("raise %s: %w", intent, err)
	}

	if cmd.asJSON {
		return writeJSON(c, res)
	}

	target := res.Target.Endpoint
	if res.Target.Kind == protocol.CandidateApp {
		target = res.Target.App + " (launched)"
	}
	printer.Ctx(ctx).Successf("%s delivered to %s", res.Intent, target)
	return nil
}

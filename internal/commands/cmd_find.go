package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/endpoint"
	"github.com/hay-kot/deskbus/internal/printer"
)

type FindCmd struct {
	flags   *Flags
	client  clientFlags
	context string
	asJSON  bool
}

// NewFindCmd creates a new find command
func NewFindCmd(flags *Flags) *FindCmd {
	return &FindCmd{flags: flags}
}

// Register adds the find command to the application
func (cmd *FindCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "find",
		Usage:     "Find applications that handle an intent",
		UsageText: "deskbus find [intent] [--context json]",
		Description: `With an intent argument, lists the applications declaring it.
Without one, lists every declared intent with its applications.`,
		Flags: append(cmd.client.flags(),
			&cli.StringFlag{
				Name:        "context",
				Usage:       "context JSON, @file or @-",
				Destination: &cmd.context,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.asJSON,
			},
		),
		Action: cmd.run,
	})

	return app
}

func (cmd *FindCmd) run(ctx context.Context, c *cli.Command) error {
	var payload protocol.Context
	if cmd.context != "" {
		var err error
		if payload, err = parseContext(cmd.context); err != nil {
			return err
		}
	}

	s, err := connect(ctx, cmd.flags, cmd.client, endpoint.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	var results []protocol.AppIntent
	if intent := c.Args().First(); intent != "" {
		ai, err := s.FindIntent(ctx, intent, payload)
		if err != nil {
			return fmt.Errorf("find %s: %w", intent, err)
		}
		results = []protocol.AppIntent{ai}
	} else {
		results, err = s.FindIntentsByContext(ctx, payload)
		if err != nil {
			return fmt.Errorf("find intents: %w", err)
		}
	}

	if cmd.asJSON {
		return writeJSON(c, results)
	}

	if len(results) == 0 {
		printer.Ctx(ctx).Infof("No intents found")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INTENT\tDISPLAY NAME\tAPPS")
	for _, ai := range results {
		names := make([]string, 0, len(ai.Apps))
		for _, app := range ai.Apps {
			names = append(names, app.Name)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", ai.Intent.Name, ai.Intent.DisplayName, strings.Join(names, ","))
	}
	return w.Flush()
}

package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deskbus/internal/endpoint"
	"github.com/hay-kot/deskbus/internal/printer"
)

type BroadcastCmd struct {
	flags   *Flags
	client  clientFlags
	channel string
}

// NewBroadcastCmd creates a new broadcast command
func NewBroadcastCmd(flags *Flags) *BroadcastCmd {
	return &BroadcastCmd{flags: flags}
}

// Register adds the broadcast command to the application
func (cmd *BroadcastCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "broadcast",
		Usage:     "Publish a context on a channel",
		UsageText: "deskbus broadcast --channel red '{\"type\":\"fdc3.instrument\",\"id\":{\"ticker\":\"AAPL\"}}'",
		Description: `Joins the channel, publishes the context and disconnects.

The context argument may be inline JSON, @file, or @- for stdin.`,
		Flags: append(cmd.client.flags(),
			&cli.StringFlag{
				Name:        "channel",
				Usage:       "channel to publish on (default channel when empty)",
				Destination: &cmd.channel,
			},
		),
		Action: cmd.run,
	})

	return app
}

func (cmd *BroadcastCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("exactly one context argument required")
	}

	payload, err := parseContext(c.Args().First())
	if err != nil {
		return err
	}

	s, err := connect(ctx, cmd.flags, cmd.client, endpoint.Options{})
	if err != nil {
		return err
	}

	if cmd.channel != "" {
		if err := s.JoinChannel(cmd.channel); err != nil {
			_ = s.Close()
			return fmt.Errorf("join %s: %w", cmd.channel, err)
		}
	}

	if err := s.Broadcast(payload); err != nil {
		_ = s.Close()
		return fmt.Errorf("broadcast: %w", err)
	}

	// Close flushes queued envelopes before the socket goes away.
	if err := s.Close(); err != nil {
		return err
	}

	channel := cmd.channel
	if channel == "" {
		channel = "default"
	}
	printer.Ctx(ctx).Successf("Broadcast %s on %s", payload.Type(), channel)
	return nil
}

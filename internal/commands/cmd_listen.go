package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/endpoint"
	"github.com/hay-kot/deskbus/internal/printer"
)

type ListenCmd struct {
	flags        *Flags
	client       clientFlags
	channel      string
	contextTypes []string
	intents      []string
}

// NewListenCmd creates a new listen command
func NewListenCmd(flags *Flags) *ListenCmd {
	return &ListenCmd{flags: flags}
}

// Register adds the listen command to the application
func (cmd *ListenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "listen",
		Usage:     "Print contexts and intents delivered to an endpoint",
		UsageText: "deskbus listen [--channel red] [--context-type t]... [--intent name]...",
		Description: `Connects as an endpoint and prints what it receives until interrupted.

Without --context-type every context on the joined channel is printed.
Each --intent registers this endpoint as a handler for that intent.`,
		Flags: append(cmd.client.flags(),
			&cli.StringFlag{
				Name:        "channel",
				Usage:       "channel to join",
				Destination: &cmd.channel,
			},
			&cli.StringSliceFlag{
				Name:        "context-type",
				Usage:       "context type to listen for (repeatable)",
				Destination: &cmd.contextTypes,
			},
			&cli.StringSliceFlag{
				Name:        "intent",
				Usage:       "intent to handle (repeatable)",
				Destination: &cmd.intents,
			},
		),
		Action: cmd.run,
	})

	return app
}

func (cmd *ListenCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := connect(ctx, cmd.flags, cmd.client, endpoint.Options{})
	if err != nil {
		return err
	}

	env := s.Environment()
	p.Infof("Connected as %s", env.Identity)

	if cmd.channel != "" {
		if err := s.JoinChannel(cmd.channel); err != nil {
			_ = s.Close()
			return fmt.Errorf("join %s: %w", cmd.channel, err)
		}
		p.Infof("Joined %s", cmd.channel)
	}

	types := cmd.contextTypes
	if len(types) == 0 {
		types = []string{""}
	}
	for _, t := range types {
		if _, err := s.AddContextListener(t, func(c protocol.Context) {
			p.Event("context", compact(c))
		}); err != nil {
			_ = s.Close()
			return fmt.Errorf("add context listener: %w", err)
		}
	}

	for _, intent := range cmd.intents {
		if _, err := s.AddIntentListener(intent, func(name string, c protocol.Context) {
			p.Event("intent "+name, compact(c))
		}); err != nil {
			_ = s.Close()
			return fmt.Errorf("add intent listener %s: %w", intent, err)
		}
	}

	select {
	case <-ctx.Done():
		return s.Close()
	case err := <-s.done:
		if err != nil {
			return err
		}
		return fmt.Errorf("broker closed the connection")
	}
}

func compact(c protocol.Context) string {
	data, err := json.Marshal(c)
	if err != nil {
		return c.Type()
	}
	return string(data)
}

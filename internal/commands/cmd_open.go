package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deskbus/internal/endpoint"
	"github.com/hay-kot/deskbus/internal/printer"
)

type OpenCmd struct {
	flags  *Flags
	client clientFlags
}

// NewOpenCmd creates a new open command
func NewOpenCmd(flags *Flags) *OpenCmd {
	return &OpenCmd{flags: flags}
}

// Register adds the open command to the application
func (cmd *OpenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "open",
		Usage:       "Launch a directory application",
		UsageText:   "deskbus open <name>",
		Description: "Asks the broker to launch the named application through the host.",
		Flags:       cmd.client.flags(),
		Action:      cmd.run,
	})

	return app
}

func (cmd *OpenCmd) run(ctx context.Context, c *cli.Command) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("application name required")
	}

	s, err := connect(ctx, cmd.flags, cmd.client, endpoint.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	entry, err := s.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}

	printer.Ctx(ctx).Successf("Opened %s", entry.DisplayTitle())
	return nil
}

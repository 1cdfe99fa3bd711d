package commands

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deskbus/internal/api"
	"github.com/hay-kot/deskbus/internal/monitor"
)

type MonitorCmd struct {
	flags    *Flags
	interval time.Duration
}

// NewMonitorCmd creates a new monitor command
func NewMonitorCmd(flags *Flags) *MonitorCmd {
	return &MonitorCmd{flags: flags}
}

// Flags returns the monitor flags so they can be registered on the root
// command, where the monitor is the default action.
func (cmd *MonitorCmd) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "interval",
			Usage:       "refresh interval for the monitor",
			Value:       time.Second,
			Destination: &cmd.interval,
		},
	}
}

// Register adds the monitor command to the application
func (cmd *MonitorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "monitor",
		Usage:       "Open the live broker dashboard",
		UsageText:   "deskbus monitor [--interval 1s]",
		Description: "Shows connected endpoints, channels, intent listeners and the context history of the selected channel.",
		Flags:       cmd.Flags(),
		Action:      cmd.Run,
	})
	return app
}

// Run starts the dashboard against the running broker.
func (cmd *MonitorCmd) Run(ctx context.Context, _ *cli.Command) error {
	client := api.NewClient(cmd.flags.HTTPURL())

	// Fail fast with a readable error instead of an empty dashboard.
	if _, err := client.State(ctx); err != nil {
		return fmt.Errorf("broker not reachable at %s: %w", cmd.flags.HTTPURL(), err)
	}

	p := tea.NewProgram(monitor.New(client, cmd.interval), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}

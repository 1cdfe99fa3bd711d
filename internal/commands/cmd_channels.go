package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deskbus/internal/api"
	"github.com/hay-kot/deskbus/internal/core/config"
	"github.com/hay-kot/deskbus/internal/printer"
	"github.com/hay-kot/deskbus/internal/store/jsonfile"
	"github.com/hay-kot/deskbus/internal/styles"
)

type ChannelsCmd struct {
	flags     *Flags
	olderThan time.Duration
	asJSON    bool
}

// NewChannelsCmd creates a new channels command
func NewChannelsCmd(flags *Flags) *ChannelsCmd {
	return &ChannelsCmd{flags: flags}
}

// Register adds the channels command to the application
func (cmd *ChannelsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "channels",
		Usage: "Inspect channels and remembered memberships",
		Commands: []*cli.Command{
			{
				Name:        "list",
				Usage:       "List system channels and remembered memberships",
				UsageText:   "deskbus channels list",
				Description: "Shows the configured system channels and which identities rejoin which channel on reconnect.",
				Action:      cmd.runList,
			},
			{
				Name:      "history",
				Usage:     "Show a channel's context history from the running broker",
				UsageText: "deskbus channels history <channel> [--json]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON",
						Destination: &cmd.asJSON,
					},
				},
				Action: cmd.runHistory,
			},
			{
				Name:      "prune",
				Usage:     "Forget memberships not updated recently",
				UsageText: "deskbus channels prune [--older-than 720h]",
				Description: `Removes remembered channel memberships whose last update is older than
the given age. Pruned identities start on the default channel when they
next connect.`,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:        "older-than",
						Usage:       "minimum age of memberships to remove",
						Value:       30 * 24 * time.Hour,
						Destination: &cmd.olderThan,
					},
				},
				Action: cmd.runPrune,
			},
		},
	})

	return app
}

func (cmd *ChannelsCmd) store() *jsonfile.ChannelStore {
	return jsonfile.NewChannelStore(cmd.flags.Config.ChannelsFile(), config.DefaultChannel)
}

func (cmd *ChannelsCmd) runList(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)
	out := c.Root().Writer

	p.Section("System channels")
	for _, ch := range cmd.flags.Config.Channels {
		name := ch.Name
		if name == "" {
			name = ch.ID
		}
		p.Printf("  %s %s (%s)", styles.Swatch(ch.Color), name, ch.ID)
	}
	p.Printf("")

	members, err := cmd.store().List(ctx)
	if err != nil {
		return fmt.Errorf("list memberships: %w", err)
	}

	if len(members) == 0 {
		p.Infof("No remembered memberships")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "IDENTITY\tCHANNEL\tUPDATED")
	for _, m := range members {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", m.Identity, m.Channel, m.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func (cmd *ChannelsCmd) runHistory(ctx context.Context, c *cli.Command) error {
	channel := c.Args().First()
	if channel == "" {
		channel = config.DefaultChannel
	}

	history, err := api.NewClient(cmd.flags.HTTPURL()).History(ctx, channel)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	if cmd.asJSON {
		return writeJSON(c, history)
	}

	if len(history) == 0 {
		printer.Ctx(ctx).Infof("No contexts on %s", channel)
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tCONTEXT")
	for _, ctxt := range history {
		data, _ := json.Marshal(ctxt)
		_, _ = fmt.Fprintf(w, "%s\t%s\n", ctxt.Type(), data)
	}
	return w.Flush()
}

func (cmd *ChannelsCmd) runPrune(ctx context.Context, _ *cli.Command) error {
	p := printer.Ctx(ctx)

	removed, err := cmd.store().Prune(ctx, time.Now().Add(-cmd.olderThan))
	if err != nil {
		return fmt.Errorf("prune memberships: %w", err)
	}

	if len(removed) == 0 {
		p.Infof("No memberships older than %s", cmd.olderThan)
		return nil
	}

	p.Successf("Pruned %d membership(s)", len(removed))
	return nil
}

package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/directory"
	"github.com/hay-kot/deskbus/internal/printer"
)

type AppsCmd struct {
	flags  *Flags
	asJSON bool
}

// NewAppsCmd creates a new apps command
func NewAppsCmd(flags *Flags) *AppsCmd {
	return &AppsCmd{flags: flags}
}

// Register adds the apps command to the application
func (cmd *AppsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "apps",
		Usage:       "List applications in the directory",
		UsageText:   "deskbus apps [--json]",
		Description: "Displays a table of directory applications with their start URL and declared intents.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.asJSON,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *AppsCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	dir, err := directory.Open(cmd.flags.Config.Directory, log.With().Str("component", "directory").Logger())
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	if dir == nil {
		p.Infof("No directory configured")
		return nil
	}

	apps, err := dir.ListApplications(ctx)
	if err != nil {
		return fmt.Errorf("list applications: %w", err)
	}

	slices.SortFunc(apps, func(a, b protocol.DirectoryEntry) int {
		return strings.Compare(a.Name, b.Name)
	})

	if cmd.asJSON {
		return writeJSON(c, apps)
	}

	if len(apps) == 0 {
		p.Infof("No applications found")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tTITLE\tSTART URL\tINTENTS")

	for _, a := range apps {
		intents := make([]string, 0, len(a.Intents))
		for _, i := range a.Intents {
			intents = append(intents, i.Name)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Name, a.DisplayTitle(), a.StartURL, strings.Join(intents, ","))
	}

	return w.Flush()
}

package commands

import (
	"context"
	"embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

//go:embed guides/*.md
var guides embed.FS

type DocCmd struct {
	flags *Flags
	raw   bool
}

func NewDocCmd(flags *Flags) *DocCmd {
	return &DocCmd{flags: flags}
}

func (cmd *DocCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "doc",
		Usage: "Protocol and manifest documentation",
		Description: `Access documentation for deskbus.

Use 'deskbus doc protocol' to see the wire protocol.
Use 'deskbus doc manifest' to see the application manifest format.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "raw",
				Usage:       "print markdown without rendering",
				Destination: &cmd.raw,
			},
		},
		Commands: []*cli.Command{
			cmd.guideCmd("protocol", "Show the endpoint wire protocol"),
			cmd.guideCmd("manifest", "Show the application manifest format"),
		},
	})
	return app
}

func (cmd *DocCmd) guideCmd(name, usage string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(_ context.Context, c *cli.Command) error {
			return cmd.print(c.Root().Writer, name)
		},
	}
}

func (cmd *DocCmd) print(w io.Writer, name string) error {
	data, err := guides.ReadFile("guides/" + name + ".md")
	if err != nil {
		return fmt.Errorf("unknown guide %q", name)
	}

	if cmd.raw || !term.IsTerminal(int(os.Stdout.Fd())) {
		_, err = w.Write(data)
		return err
	}

	out, err := renderMarkdown(string(data), terminalWidth())
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func renderMarkdown(md string, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("tokyo-night"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}

	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimRight(out, "\n") + "\n", nil
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return min(w, 120)
}

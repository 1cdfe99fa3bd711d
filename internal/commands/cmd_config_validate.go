package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deskbus/internal/core/config"
	"github.com/hay-kot/deskbus/internal/printer"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
}

func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Inspect the deskbus configuration",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Check every configuration section",
				UsageText: "deskbus config validate [--format json]",
				Description: "Reports each section of the configuration (listen address, directory, broker, " +
					"host commands, system channels, identity bindings) with its problems.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

type sectionProblem struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type sectionReport struct {
	Name     string           `json:"name"`
	Summary  string           `json:"summary"`
	Errors   []sectionProblem `json:"errors,omitempty"`
	Warnings []sectionProblem `json:"warnings,omitempty"`
}

func (s sectionReport) ok() bool { return len(s.Errors) == 0 }

// configSections lists the report sections in file order. Field paths from
// validation map onto them by their leading segment.
var configSections = []struct {
	name   string
	fields []string
}{
	{name: "file", fields: []string{"config_file", "data_dir"}},
	{name: "listen", fields: []string{"listen", "cors_origins"}},
	{name: "directory", fields: []string{"directory"}},
	{name: "broker", fields: []string{"broker"}},
	{name: "host", fields: []string{"host"}},
	{name: "channels", fields: []string{"channels"}},
	{name: "bindings", fields: []string{"bindings"}},
}

// sectionFor returns the section a validation field path belongs to.
func sectionFor(field string) string {
	head, _, _ := strings.Cut(field, ".")
	head, _, _ = strings.Cut(head, "[")
	for _, s := range configSections {
		for _, f := range s.fields {
			if f == head {
				return s.name
			}
		}
	}
	return "file"
}

func sectionSummary(cfg *config.Config, name string) string {
	switch name {
	case "file":
		return "data in " + cfg.DataDir
	case "listen":
		return fmt.Sprintf("%s, %d CORS origin(s)", cfg.Listen, len(cfg.CORSOrigins))
	case "directory":
		switch {
		case cfg.Directory.URL != "":
			return "remote " + cfg.Directory.URL
		case cfg.Directory.File != "":
			return "file " + cfg.Directory.File
		default:
			return "none"
		}
	case "broker":
		return fmt.Sprintf("request timeout %s, history %d", cfg.Broker.RequestTimeout, cfg.Broker.HistoryLimit)
	case "host":
		return fmt.Sprintf("%d open, %d focus command(s)", len(cfg.Host.Open), len(cfg.Host.Focus))
	case "channels":
		return fmt.Sprintf("%d system channel(s)", len(cfg.Channels))
	case "bindings":
		return fmt.Sprintf("%d binding(s)", len(cfg.Bindings))
	}
	return ""
}

// buildSectionReports sorts validation errors and warnings into sections.
func buildSectionReports(cfg *config.Config, validationErr error, warnings []config.ValidationWarning) []sectionReport {
	reports := make([]sectionReport, len(configSections))
	index := make(map[string]int, len(configSections))
	for i, s := range configSections {
		reports[i] = sectionReport{Name: s.name, Summary: sectionSummary(cfg, s.name)}
		index[s.name] = i
	}

	for _, fe := range extractFieldErrors(validationErr) {
		r := &reports[index[sectionFor(fe.Field)]]
		r.Errors = append(r.Errors, sectionProblem{Field: fe.Field, Message: fe.Err.Error()})
	}

	for _, w := range warnings {
		r := &reports[index[sectionFor(strings.ToLower(w.Category))]]
		r.Warnings = append(r.Warnings, sectionProblem{Field: w.Item, Message: w.Message})
	}

	return reports
}

func extractFieldErrors(err error) criterio.FieldErrors {
	if err == nil {
		return nil
	}
	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	return criterio.FieldErrors{{Err: err}}
}

func (cmd *ConfigValidateCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	validationErr := cfg.ValidateDeep(cmd.flags.ConfigPath)
	reports := buildSectionReports(cfg, validationErr, cfg.Warnings())

	if cmd.format == "json" {
		if err := writeJSON(c, struct {
			Valid    bool            `json:"valid"`
			Path     string          `json:"path,omitempty"`
			Sections []sectionReport `json:"sections"`
		}{
			Valid:    validationErr == nil,
			Path:     cmd.flags.ConfigPath,
			Sections: reports,
		}); err != nil {
			return err
		}
	} else {
		printSectionReports(printer.Ctx(ctx), cmd.flags.ConfigPath, reports)
	}

	if validationErr != nil {
		return cli.Exit("", 1)
	}
	return nil
}

func printSectionReports(p *printer.Printer, path string, reports []sectionReport) {
	if path != "" {
		p.Printf("Validating %s", path)
		p.Printf("")
	}

	var errCount, warnCount int
	for _, r := range reports {
		errCount += len(r.Errors)
		warnCount += len(r.Warnings)

		switch {
		case !r.ok():
			p.FailItem(r.Name, r.Summary)
		case len(r.Warnings) > 0:
			p.WarnItem(r.Name, r.Summary)
		default:
			p.CheckItem(r.Name, r.Summary)
		}

		for _, e := range r.Errors {
			p.Printf("    %s %s", printer.Cross, problemText(e))
		}
		for _, w := range r.Warnings {
			p.Printf("    %s %s", printer.Dot, problemText(w))
		}
	}

	p.Printf("")
	if errCount == 0 {
		p.Successf("Configuration is valid (%d warning(s))", warnCount)
		return
	}
	p.Errorf("%d error(s), %d warning(s)", errCount, warnCount)
}

func problemText(pr sectionProblem) string {
	if pr.Field == "" {
		return pr.Message
	}
	return pr.Field + ": " + pr.Message
}

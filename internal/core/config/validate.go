package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"

	"github.com/hay-kot/deskbus/pkg/tmpl"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// OpenTemplateData defines available fields for host open templates.
type OpenTemplateData struct {
	URL  string
	Name string
	Type string
}

// FocusTemplateData defines available fields for host focus templates.
type FocusTemplateData struct {
	Identity string
	App      string
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this checks templates, glob patterns, URLs and file
// access. The returned error is a criterio.FieldErrors when non-nil.
func (c *Config) ValidateDeep(configPath string) error {
	var errs criterio.FieldErrorsBuilder

	errs = c.validateFileAccess(errs, configPath)
	errs = c.validateDirectory(errs)
	errs = c.validateHost(errs)
	errs = c.validateChannels(errs)
	errs = c.validateBindings(errs)

	return errs.ToError()
}

func (c *Config) validateFileAccess(errs criterio.FieldErrorsBuilder, configPath string) criterio.FieldErrorsBuilder {
	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil && info.IsDir() {
			errs = errs.Append("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
		} else if err != nil && !os.IsNotExist(err) {
			errs = errs.Append("config_file", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.DataDir != "" {
		if info, err := os.Stat(c.DataDir); err == nil && !info.IsDir() {
			errs = errs.Append("data_dir", fmt.Errorf("%s exists but is not a directory", c.DataDir))
		} else if err != nil && !os.IsNotExist(err) {
			errs = errs.Append("data_dir", fmt.Errorf("cannot access %s: %w", c.DataDir, err))
		}
	}

	return errs
}

func (c *Config) validateDirectory(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	d := c.Directory

	if d.URL != "" && d.File != "" {
		errs = errs.Append("directory", fmt.Errorf("set either url or file, not both"))
	}

	if d.URL != "" {
		u, err := url.Parse(d.URL)
		switch {
		case err != nil:
			errs = errs.Append("directory.url", fmt.Errorf("invalid url: %w", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = errs.Append("directory.url", fmt.Errorf("unsupported scheme %q", u.Scheme))
		}
	}

	if d.File != "" {
		if _, err := os.Stat(d.File); err != nil {
			errs = errs.Append("directory.file", fmt.Errorf("cannot access %s: %w", d.File, err))
		}
	}

	if d.CacheSize < 1 {
		errs = errs.Append("directory.cache_size", fmt.Errorf("must be at least 1"))
	}

	return errs
}

func (c *Config) validateHost(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	for i, cmd := range c.Host.Open {
		if err := tmpl.Validate(cmd, OpenTemplateData{}); err != nil {
			errs = errs.Append(fmt.Sprintf("host.open[%d]", i), fmt.Errorf("template error: %w", err))
		}
	}
	for i, cmd := range c.Host.Focus {
		if err := tmpl.Validate(cmd, FocusTemplateData{}); err != nil {
			errs = errs.Append(fmt.Sprintf("host.focus[%d]", i), fmt.Errorf("template error: %w", err))
		}
	}
	return errs
}

func (c *Config) validateChannels(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		field := fmt.Sprintf("channels[%d].id", i)
		switch {
		case ch.ID == "":
			errs = errs.Append(field, fmt.Errorf("cannot be empty"))
		case ch.ID == DefaultChannel:
			errs = errs.Append(field, fmt.Errorf("%q is reserved", DefaultChannel))
		case seen[ch.ID]:
			errs = errs.Append(field, fmt.Errorf("duplicate channel %q", ch.ID))
		}
		seen[ch.ID] = true
	}
	return errs
}

func (c *Config) validateBindings(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	for i, b := range c.Bindings {
		if !doublestar.ValidatePattern(b.Pattern) {
			errs = errs.Append(fmt.Sprintf("bindings[%d].pattern", i), fmt.Errorf("invalid glob %q", b.Pattern))
		}
		if b.App == "" {
			errs = errs.Append(fmt.Sprintf("bindings[%d].app", i), fmt.Errorf("cannot be empty"))
		}
	}
	return errs
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Directory.URL == "" && c.Directory.File == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Directory",
			Message:  "no directory configured; open and findIntent will find nothing",
		})
	}

	if len(c.Host.Open) == 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Host",
			Item:     "open",
			Message:  "no open commands; applications cannot be launched",
		})
	}

	if c.Broker.SweepInterval > c.Broker.RequestTimeout {
		warnings = append(warnings, ValidationWarning{
			Category: "Broker",
			Item:     "sweep_interval",
			Message:  "sweep interval exceeds request timeout; expiries will be late",
		})
	}

	return warnings
}

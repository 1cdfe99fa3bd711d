// Package host drives the desktop on behalf of the broker: materializing
// application windows and bringing them to the front.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hay-kot/deskbus/internal/core/config"
	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/pkg/executil"
	"github.com/hay-kot/deskbus/pkg/tmpl"
)

// ErrNoOpenCommand is returned by Materialize when no open command is
// configured.
var ErrNoOpenCommand = errors.New("no host open command configured")

// ExecHost runs configured shell command templates.
type ExecHost struct {
	open  []string
	focus []string
	exec  executil.Executor
	log   zerolog.Logger
}

// New creates an ExecHost from the host configuration.
func New(cfg config.HostConfig, exec executil.Executor, log zerolog.Logger) *ExecHost {
	return &ExecHost{
		open:  cfg.Open,
		focus: cfg.Focus,
		exec:  exec,
		log:   log.With().Str("component", "host").Logger(),
	}
}

// Materialize starts every open command for app. Commands are started
// detached so a browser that stays in the foreground does not hold the
// broker.
func (h *ExecHost) Materialize(_ context.Context, app protocol.StartupApp, label string) error {
	if len(h.open) == 0 {
		return ErrNoOpenCommand
	}
	if app.URL == "" {
		return fmt.Errorf("materialize %s: empty url", label)
	}

	data := config.OpenTemplateData{URL: app.URL, Name: label, Type: app.Type}
	for i, t := range h.open {
		script, err := tmpl.Render(t, data)
		if err != nil {
			return fmt.Errorf("render host.open[%d]: %w", i, err)
		}

		h.log.Debug().Str("app", label).Str("script", script).Msg("materialize")
		if err := h.exec.Start(script); err != nil {
			return fmt.Errorf("materialize %s: %w", label, err)
		}
	}
	return nil
}

// Focus runs the focus commands for an endpoint. Without focus commands it
// does nothing.
func (h *ExecHost) Focus(ctx context.Context, identity, app string) error {
	data := config.FocusTemplateData{Identity: identity, App: app}
	for i, t := range h.focus {
		script, err := tmpl.Render(t, data)
		if err != nil {
			return fmt.Errorf("render host.focus[%d]: %w", i, err)
		}

		out, err := h.exec.Shell(ctx, script)
		if err != nil {
			return fmt.Errorf("focus %s: %w: %s", identity, err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

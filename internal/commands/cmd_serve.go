package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/hay-kot/deskbus/internal/api"
	"github.com/hay-kot/deskbus/internal/broker"
	"github.com/hay-kot/deskbus/internal/core/config"
	"github.com/hay-kot/deskbus/internal/directory"
	"github.com/hay-kot/deskbus/internal/host"
	"github.com/hay-kot/deskbus/internal/printer"
	"github.com/hay-kot/deskbus/internal/store/jsonfile"
	"github.com/hay-kot/deskbus/pkg/executil"
)

const shutdownTimeout = 5 * time.Second

type ServeCmd struct {
	flags *Flags
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the interop broker",
		UsageText: "deskbus serve [--listen addr]",
		Description: `Starts the broker and its HTTP surface.

Endpoints connect over a websocket at /ws?identity=<id>&app=<name>. The
broker also serves /healthz, /metrics, /api/state, /api/directory and
/api/channels/<id>/history.

Stop with Ctrl-C; connected endpoints are disconnected and pending
requests fail.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "address to listen on (overrides config)",
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	if addr := c.String("listen"); addr != "" {
		cfg.Listen = addr
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	dir, err := directory.Open(cfg.Directory, log.With().Str("component", "directory").Logger())
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}

	bindings, err := host.NewBindings(cfg.Bindings)
	if err != nil {
		return fmt.Errorf("load bindings: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var (
		exec     = &executil.RealExecutor{}
		desktop  = host.New(cfg.Host, exec, log.With().Str("component", "host").Logger())
		channels = jsonfile.NewChannelStore(cfg.ChannelsFile(), config.DefaultChannel)
	)

	b := broker.New(log.With().Str("component", "broker").Logger(), dir, desktop, broker.Options{
		RequestTimeout: cfg.Broker.RequestTimeout,
		SweepInterval:  cfg.Broker.SweepInterval,
		HistoryLimit:   cfg.Broker.HistoryLimit,
		OutboundBuffer: cfg.Broker.OutboundBuffer,
		SystemChannels: cfg.Channels,
		Binder:         bindings,
		Channels:       channels,
		Metrics:        broker.NewMetrics(reg),
	})

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: api.New(b, dir, log.Logger, api.Options{
			CORSOrigins: cfg.CORSOrigins,
			Registry:    reg,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Run(ctx)
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", cfg.Listen, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	p := printer.Ctx(ctx)
	p.Successf("Broker listening on %s", cfg.Listen)
	if dir == nil {
		p.Warnf("No directory configured; open and findIntent will find nothing")
	}

	if err := g.Wait(); err != nil {
		return err
	}

	p.Infof("Broker stopped")
	return nil
}

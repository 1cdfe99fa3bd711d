package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/endpoint"
	"github.com/hay-kot/deskbus/internal/transport"
	"github.com/hay-kot/deskbus/pkg/randid"
)

const readyTimeout = 10 * time.Second

// clientFlags are shared by commands that connect as an endpoint.
type clientFlags struct {
	identity string
	app      string
}

func (f *clientFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "identity",
			Usage:       "endpoint identity (random when empty)",
			Destination: &f.identity,
		},
		&cli.StringFlag{
			Name:        "app",
			Usage:       "directory application this endpoint represents",
			Destination: &f.app,
		},
	}
}

// session is a connected endpoint adapter.
type session struct {
	*endpoint.Adapter
	done chan error
}

// Close disconnects and waits for the adapter to stop.
func (s *session) Close() error {
	_ = s.Adapter.Close()
	return <-s.done
}

// connect dials the broker as a transient endpoint and waits for readiness.
func connect(ctx context.Context, flags *Flags, cf clientFlags, opts endpoint.Options) (*session, error) {
	identity := cf.identity
	if identity == "" {
		identity = randid.WithPrefix("cli", 6)
	}

	q := url.Values{"identity": {identity}}
	if cf.app != "" {
		q.Set("app", cf.app)
	}
	wsURL := flags.BrokerURL() + "/ws?" + q.Encode()

	logger := log.With().Str("component", "client").Str("identity", identity).Logger()

	dialCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	conn, err := transport.Dial(dialCtx, wsURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	if opts.Timeout == 0 {
		opts.Timeout = flags.Config.Broker.RequestTimeout
	}
	a := endpoint.New(conn, logger, opts)

	s := &session{Adapter: a, done: make(chan error, 1)}
	go func() { s.done <- a.Run(context.WithoutCancel(ctx)) }()

	select {
	case <-a.Ready():
		return s, nil
	case err := <-s.done:
		if err == nil {
			err = fmt.Errorf("broker closed the connection")
		}
		return nil, fmt.Errorf("connect to broker: %w", err)
	case <-dialCtx.Done():
		_ = s.Close()
		return nil, fmt.Errorf("connect to broker: no readiness after %s", readyTimeout)
	}
}

// parseContext decodes a JSON context from raw or, when raw starts with
// '@', from the named file ("-" reads stdin).
func parseContext(raw string) (protocol.Context, error) {
	data := []byte(raw)
	if len(raw) > 0 && raw[0] == '@' {
		var err error
		if raw == "@-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(raw[1:])
		}
		if err != nil {
			return nil, fmt.Errorf("read context: %w", err)
		}
	}

	var c protocol.Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse context: %w", err)
	}
	if c.Type() == "" {
		return nil, fmt.Errorf("context must have a \"type\" field")
	}
	return c, nil
}

func writeJSON(c *cli.Command, v any) error {
	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

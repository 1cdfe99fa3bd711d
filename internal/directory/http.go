package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

const (
	manifestTTL  = 5 * time.Minute
	maxBodyBytes = 4 << 20
)

// HTTPOptions tunes an HTTPClient.
type HTTPOptions struct {
	Timeout          time.Duration
	CacheSize        int
	FailureThreshold uint32
	Cooldown         time.Duration
	Client           *http.Client
}

// HTTPClient reads the catalog from a remote directory service. Every
// request goes through a circuit breaker, and manifests are cached.
type HTTPClient struct {
	base      *url.URL
	client    *http.Client
	log       zerolog.Logger
	breaker   *gobreaker.CircuitBreaker
	manifests *expirable.LRU[string, protocol.Manifest]
}

// NewHTTPClient creates a client for the catalog served at catalogURL.
func NewHTTPClient(catalogURL string, log zerolog.Logger, opts HTTPOptions) (*HTTPClient, error) {
	base, err := url.Parse(catalogURL)
	if err != nil {
		return nil, fmt.Errorf("parse directory url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("directory url must be http or https: %q", catalogURL)
	}

	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	log = log.With().Str("component", "directory").Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "directory",
		Timeout: opts.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("directory circuit changed state")
		},
	})

	return &HTTPClient{
		base:      base,
		client:    client,
		log:       log,
		breaker:   breaker,
		manifests: expirable.NewLRU[string, protocol.Manifest](opts.CacheSize, nil, manifestTTL),
	}, nil
}

// ListApplications fetches the catalog. Relative manifest URLs are resolved
// against the catalog URL.
func (c *HTTPClient) ListApplications(ctx context.Context) ([]protocol.DirectoryEntry, error) {
	var apps []protocol.DirectoryEntry
	if err := c.get(ctx, c.base.String(), &apps); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	for i := range apps {
		if apps[i].ManifestURL == "" {
			continue
		}
		ref, err := url.Parse(apps[i].ManifestURL)
		if err != nil {
			c.log.Warn().Err(err).Str("app", apps[i].Name).Msg("invalid manifest url")
			continue
		}
		apps[i].ManifestURL = c.base.ResolveReference(ref).String()
	}
	return apps, nil
}

// FetchManifest returns the manifest at rawURL, served from cache when
// fresh.
func (c *HTTPClient) FetchManifest(ctx context.Context, rawURL string) (protocol.Manifest, error) {
	if m, ok := c.manifests.Get(rawURL); ok {
		return m, nil
	}

	var m protocol.Manifest
	if err := c.get(ctx, rawURL, &m); err != nil {
		return m, fmt.Errorf("fetch manifest: %w", err)
	}

	c.manifests.Add(rawURL, m)
	return m, nil
}

// Purge drops every cached manifest.
func (c *HTTPClient) Purge() {
	c.manifests.Purge()
}

// State reports the circuit breaker state.
func (c *HTTPClient) State() string {
	return c.breaker.State().String()
}

func (c *HTTPClient) get(ctx context.Context, rawURL string, v any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, rawURL, v)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *HTTPClient) do(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s: unexpected status %d", rawURL, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

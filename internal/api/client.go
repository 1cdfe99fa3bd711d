package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hay-kot/deskbus/internal/broker"
	"github.com/hay-kot/deskbus/internal/core/protocol"
)

// Client reads the broker's HTTP surface.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the broker at base, e.g.
// http://127.0.0.1:5556.
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// State fetches the broker snapshot.
func (c *Client) State(ctx context.Context) (broker.State, error) {
	var st broker.State
	err := c.get(ctx, "/api/state", &st)
	return st, err
}

// History fetches a channel's contexts, newest first.
func (c *Client) History(ctx context.Context, channel string) ([]protocol.Context, error) {
	var out []protocol.Context
	err := c.get(ctx, "/api/channels/"+url.PathEscape(channel)+"/history", &out)
	return out, err
}

// Directory fetches the application catalog the broker sees.
func (c *Client) Directory(ctx context.Context) ([]protocol.DirectoryEntry, error) {
	var out []protocol.DirectoryEntry
	err := c.get(ctx, "/api/directory", &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
		if body.Error == "" {
			body.Error = resp.Status
		}
		return fmt.Errorf("get %s: %s", path, body.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

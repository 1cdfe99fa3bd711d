package doctor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ListenCheck reports whether the broker address is free or already served
// by a running broker.
type ListenCheck struct {
	addr   string
	client *http.Client
}

// NewListenCheck creates a listen address check.
func NewListenCheck(addr string) *ListenCheck {
	return &ListenCheck{addr: addr, client: &http.Client{Timeout: 2 * time.Second}}
}

func (c *ListenCheck) Name() string {
	return "Broker"
}

func (c *ListenCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	ln, err := net.Listen("tcp", c.addr)
	if err == nil {
		_ = ln.Close()
		result.Items = append(result.Items, CheckItem{
			Label:  "Listen address",
			Status: StatusPass,
			Detail: c.addr + " is available",
		})
		return result
	}

	if c.healthy(ctx) {
		result.Items = append(result.Items, CheckItem{
			Label:  "Listen address",
			Status: StatusPass,
			Detail: "broker already running on " + c.addr,
		})
		return result
	}

	result.Items = append(result.Items, CheckItem{
		Label:  "Listen address",
		Status: StatusFail,
		Detail: fmt.Sprintf("%s is in use by another process", c.addr),
	})
	return result
}

func (c *ListenCheck) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.addr+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

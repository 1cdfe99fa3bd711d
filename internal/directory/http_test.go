package directory

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

type directoryServer struct {
	manifestHits atomic.Int32
	fail         atomic.Bool
}

func (s *directoryServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /apps", func(w http.ResponseWriter, r *http.Request) {
		if s.fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode([]protocol.DirectoryEntry{
			{Name: "charts", ManifestURL: "manifests/charts.json"},
			{Name: "news", ManifestURL: "https://elsewhere.example/news.json"},
			{Name: "bare"},
		})
	})
	mux.HandleFunc("GET /manifests/charts.json", func(w http.ResponseWriter, r *http.Request) {
		s.manifestHits.Add(1)
		_ = json.NewEncoder(w).Encode(protocol.Manifest{
			StartupApp: protocol.StartupApp{URL: "https://charts.example", Type: "url"},
		})
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server, threshold uint32) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(srv.URL+"/apps", zerolog.New(io.Discard), HTTPOptions{
		Timeout:          time.Second,
		FailureThreshold: threshold,
		Cooldown:         time.Minute,
	})
	require.NoError(t, err)
	return c
}

func TestHTTPClient_ListApplications(t *testing.T) {
	ds := &directoryServer{}
	srv := httptest.NewServer(ds.handler())
	defer srv.Close()

	apps, err := newTestClient(t, srv, 5).ListApplications(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 3)

	assert.Equal(t, srv.URL+"/manifests/charts.json", apps[0].ManifestURL)
	assert.Equal(t, "https://elsewhere.example/news.json", apps[1].ManifestURL)
	assert.Empty(t, apps[2].ManifestURL)
}

func TestHTTPClient_FetchManifestCaches(t *testing.T) {
	ds := &directoryServer{}
	srv := httptest.NewServer(ds.handler())
	defer srv.Close()

	c := newTestClient(t, srv, 5)
	for range 3 {
		m, err := c.FetchManifest(context.Background(), srv.URL+"/manifests/charts.json")
		require.NoError(t, err)
		assert.Equal(t, "https://charts.example", m.StartupApp.URL)
	}
	assert.Equal(t, int32(1), ds.manifestHits.Load())

	c.Purge()
	_, err := c.FetchManifest(context.Background(), srv.URL+"/manifests/charts.json")
	require.NoError(t, err)
	assert.Equal(t, int32(2), ds.manifestHits.Load())
}

func TestHTTPClient_NotFoundDoesNotTrip(t *testing.T) {
	ds := &directoryServer{}
	srv := httptest.NewServer(ds.handler())
	defer srv.Close()

	c := newTestClient(t, srv, 2)
	for range 4 {
		_, err := c.FetchManifest(context.Background(), srv.URL+"/missing.json")
		require.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, "closed", c.State())
}

func TestHTTPClient_BreakerOpens(t *testing.T) {
	ds := &directoryServer{}
	ds.fail.Store(true)
	srv := httptest.NewServer(ds.handler())
	defer srv.Close()

	c := newTestClient(t, srv, 2)
	for range 2 {
		_, err := c.ListApplications(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	ds.fail.Store(false)
	_, err := c.ListApplications(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "open", c.State())
}

func TestNewHTTPClient_RejectsBadScheme(t *testing.T) {
	_, err := NewHTTPClient("ftp://example.com/apps", zerolog.New(io.Discard), HTTPOptions{})
	require.Error(t, err)
}

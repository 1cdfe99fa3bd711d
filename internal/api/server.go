// Package api exposes the broker over HTTP: the websocket endpoint, a JSON
// view of broker state, the loaded catalog, and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hay-kot/deskbus/internal/broker"
	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/directory"
	"github.com/hay-kot/deskbus/internal/transport"
)

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins []string
	// Registry serves /metrics and receives the HTTP instruments.
	Registry *prometheus.Registry
}

// Server routes HTTP requests to the broker.
type Server struct {
	broker  *broker.Broker
	dir     directory.Directory
	log     zerolog.Logger
	router  *gin.Engine
	started time.Time
	metrics *httpMetrics
}

// New builds the router. dir may be nil.
func New(b *broker.Broker, dir directory.Directory, log zerolog.Logger, opts Options) *Server {
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	s := &Server{
		broker:  b,
		dir:     dir,
		log:     log.With().Str("component", "api").Logger(),
		started: time.Now(),
		metrics: newHTTPMetrics(opts.Registry),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))
	r.Use(s.metrics.middleware())
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	r.GET("/ws", s.websocket)

	api := r.Group("/api")
	api.GET("/state", s.state)
	api.GET("/directory", s.directory)
	api.GET("/channels/:channel/history", s.history)

	s.router = r
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) state(c *gin.Context) {
	st, err := s.broker.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) history(c *gin.Context) {
	h, err := s.broker.History(c.Request.Context(), c.Param("channel"))
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, err)
		return
	}
	if h == nil {
		h = []protocol.Context{}
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) directory(c *gin.Context) {
	if s.dir == nil {
		c.JSON(http.StatusOK, []protocol.DirectoryEntry{})
		return
	}

	apps, err := s.dir.ListApplications(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	if apps == nil {
		apps = []protocol.DirectoryEntry{}
	}
	c.JSON(http.StatusOK, apps)
}

// websocket upgrades /ws?identity=<id>&app=<name> and serves the endpoint
// until it disconnects.
func (s *Server) websocket(c *gin.Context) {
	id := broker.Identity{ID: c.Query("identity"), App: c.Query("app")}
	if id.ID == "" {
		writeError(c, http.StatusBadRequest, protocol.Errorf(protocol.CodeMalformedMessage, "identity query parameter is required"))
		return
	}

	conn, err := transport.Accept(c.Writer, c.Request, s.log.With().Str("endpoint", id.ID).Logger())
	if err != nil {
		s.log.Warn().Err(err).Str("endpoint", id.ID).Msg("websocket upgrade failed")
		return
	}

	if err := s.broker.Serve(c.Request.Context(), conn, id); err != nil {
		s.log.Info().Err(err).Str("endpoint", id.ID).Msg("endpoint session ended")
	}
}

func writeError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

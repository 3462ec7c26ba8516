// Package server exposes the dispatcher over HTTP: a single POST /api
// endpoint taking {concept, action, params}.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/roach88/campuscloset/internal/dispatch"
	"github.com/roach88/campuscloset/internal/ir"
)

// Request is the body of POST /api.
type Request struct {
	Concept string      `json:"concept"`
	Action  string      `json:"action"`
	Params  ir.IRObject `json:"params"`
}

// Server routes HTTP requests to a dispatcher.
type Server struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	corsOrigin string
	metrics    http.Handler
	health     func(context.Context) error
	router     *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCORSOrigin sets Access-Control-Allow-Origin. Default: "*".
func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHealthCheck makes GET /healthz report 503 when check fails.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// New builds the gin router around d.
func New(d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		logger:     slog.Default(),
		corsOrigin: "*",
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), s.requestLog(), otelgin.Middleware("campuscloset"), s.cors())

	r.POST("/api", s.handleAPI)
	r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, ir.Failed("Method not allowed"))
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ir.Failed("Not found"))
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer returns an http.Server for addr serving this handler.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) handleAPI(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ir.Failed("Invalid request body: "+err.Error()))
		return
	}
	if req.Concept == "" || req.Action == "" {
		c.JSON(http.StatusBadRequest, ir.Failed("concept and action are required"))
		return
	}

	out, err := s.dispatcher.Handle(c.Request.Context(), req.Concept, req.Action, req.Params)
	c.JSON(statusFor(err), out)
}

// statusFor maps a dispatch error to an HTTP status. Action failures
// are 500 with the action's own message.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case dispatch.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", s.corsOrigin)
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

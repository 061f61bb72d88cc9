// Package server wires AShareInsight's HTTP surface: the C9 search endpoint
// and liveness/readiness probes, following the reference codebase's
// gin.Engine composition (explicit middleware chain, route groups, graceful
// shutdown against an errgroup-free os/signal wait) rather than reaching for
// a heavier web framework.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/server/handlers"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// Server hosts AShareInsight's HTTP API.
type Server struct {
	cfg    config.ServerConfig
	router *gin.Engine
	http   *http.Server
	log    *slog.Logger
}

// New builds a Server. search and health are the handlers behind
// /api/v1/search/similar-companies and the /live, /ready probes.
func New(cfg config.ServerConfig, search *handlers.SearchHandler, health *handlers.HealthHandler, log *slog.Logger) *Server {
	if cfg.Mode == "" {
		cfg.Mode = gin.ReleaseMode
	}
	gin.SetMode(cfg.Mode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(slogMiddleware(log))
	router.Use(corsMiddleware())

	router.GET("/live", health.Live)
	router.GET("/ready", health.Ready)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/search/similar-companies", search.Search)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		cfg:    cfg,
		router: router,
		http:   &http.Server{Addr: addr, Handler: router},
		log:    log,
	}
}

// Start blocks serving HTTP until the listener fails or Shutdown is called,
// in which case it returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.log.Info("starting http server", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within the configured timeout (default
// 10s) before closing the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := time.Duration(s.cfg.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	s.log.Info("shutting down http server")
	return s.http.Shutdown(ctx)
}

// requestIDMiddleware attaches a per-request correlation id (from
// X-Request-ID if the caller supplied one, otherwise freshly generated) to
// the request context and echoes it back on the response, per §7.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Header("X-Request-ID", id)
		ctx := context.WithValue(c.Request.Context(), types.ContextKeyRequestID, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// slogMiddleware logs one line per request at Info level, replacing gin's
// default text logger with the application's structured logger.
func slogMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		requestID, _ := c.Request.Context().Value(types.ContextKeyRequestID).(string)
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"request_id", requestID,
		)
	}
}

// corsMiddleware allows browser-based dashboards to call the API directly.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

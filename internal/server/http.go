package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civiq/internal/complaints"
	"civiq/internal/protect"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
	limiter *RateLimiter
}

// Config holds server configuration options
type Config struct {
	AuthSecret     []byte  // HMAC secret for bearer token verification
	MetricsEnabled bool    // Whether to expose the Prometheus metrics endpoint
	BodySizeLimit  int64   // Max request body size in bytes (default: 1MB)
	RateLimitRPS   float64 // Sustained requests per second per client (0 disables)
	RateLimitBurst int     // Burst allowance per client
}

const defaultBodySizeLimit = 1 << 20

// New creates a new HTTP server wiring the handlers behind the middleware
// stack.
func New(svc *complaints.Service, coord *protect.Coordinator, policies map[string]protect.Policy, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(svc, coord, policies)

	// Global middleware stack (order matters): recover first, then request
	// logging, body limit, identity extraction, and per-client rate limiting.
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	bodySizeLimit := int64(defaultBodySizeLimit)
	if cfg != nil && cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10)))

	if cfg != nil && len(cfg.AuthSecret) > 0 {
		e.Use(AuthMiddleware(cfg.AuthSecret))
	}
	var limiter *RateLimiter
	if cfg != nil && cfg.RateLimitRPS > 0 {
		limiter = NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		e.Use(limiter.Middleware())
	}

	// Public routes
	e.GET("/health", handler.Health)
	if cfg != nil && cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	// API routes
	api := e.Group("/api")
	api.GET("/complaints", handler.ListComplaints)
	api.POST("/complaints", handler.CreateComplaint)
	api.GET("/complaints/:id", handler.GetComplaint)
	api.PATCH("/complaints/:id/status", handler.UpdateStatus)
	api.PATCH("/complaints/:id/assign", handler.Assign)
	api.GET("/complaints/:id/notes", handler.ListNotes)
	api.POST("/complaints/:id/notes", handler.AddNote)

	return &Server{
		echo:    e,
		handler: handler,
		limiter: limiter,
	}
}

// requestLogger logs one structured line per request through slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			return nil
		},
	})
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

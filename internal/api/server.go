// Package api exposes the HTTP API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/decisioning"
	"github.com/shelfarr/shelfarr/internal/downloader"
	"github.com/shelfarr/shelfarr/internal/health"
	"github.com/shelfarr/shelfarr/internal/scheduler"
)

// Server handles HTTP requests for the Shelfarr API.
type Server struct {
	echo   *echo.Echo
	logger zerolog.Logger
	cfg    *config.Config

	store     *database.Store
	downloads *downloader.Service
	policy    *decisioning.Policy
	monitor   *health.Monitor
	sched     *scheduler.Scheduler
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, store *database.Store, downloads *downloader.Service,
	policy *decisioning.Policy, monitor *health.Monitor, sched *scheduler.Scheduler, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		logger:    logger.With().Str("component", "api").Logger(),
		cfg:       cfg,
		store:     store,
		downloads: downloads,
		policy:    policy,
		monitor:   monitor,
		sched:     sched,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.BodyLimit("2M"))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.liveness)

	api := s.echo.Group("/api/v1")

	clients := api.Group("/download-clients")
	clients.GET("", s.listDownloadClients)
	clients.POST("", s.addDownloadClient)
	clients.POST("/test", s.testDownloadClientConfig)
	clients.GET("/:id", s.getDownloadClient)
	clients.PUT("/:id", s.updateDownloadClient)
	clients.DELETE("/:id", s.deleteDownloadClient)
	clients.POST("/:id/test", s.testDownloadClient)

	api.GET("/requests", s.listRequests)
	api.POST("/requests", s.createRequest)
	api.GET("/requests/:id", s.getRequest)
	api.GET("/requests/:id/results", s.listSearchResults)
	api.POST("/requests/:id/auto-grab", s.autoGrab)

	api.GET("/books/:id", s.getBook)

	api.GET("/downloads", s.listActiveDownloads)

	system := api.Group("/system")
	system.GET("/health", s.getServiceHealth)
	system.POST("/health/:service/check", s.runHealthCheck)
	system.GET("/tasks", s.listTasks)
	system.POST("/tasks/:id/run", s.runTask)
}

func (s *Server) liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Handler exposes the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.cfg.Server.Address()
	s.logger.Info().Str("address", addr).Msg("Starting HTTP server")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

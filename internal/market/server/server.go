// Package server assembles the marketplace HTTP API: middleware, routes,
// uploaded file serving, health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/songzhibin97/qwork/internal/config"
	"github.com/songzhibin97/qwork/internal/filestore"
	"github.com/songzhibin97/qwork/internal/market/handler"
	jwtmw "github.com/songzhibin97/qwork/internal/market/middleware"
	"github.com/songzhibin97/qwork/internal/market/service"
	"github.com/songzhibin97/qwork/internal/middleware"
	"github.com/songzhibin97/qwork/internal/ratelimit"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
	"github.com/songzhibin97/qwork/pkg/store"
)

// Dependencies are the components the server routes requests to
type Dependencies struct {
	Repo       market.Repository
	Store      store.AtomicStore
	Files      *filestore.Store
	Tokens     jwtmw.TokenValidator
	Accounts   *service.AccountService
	Portfolios *service.PortfolioService
	Admins     *service.AdminService

	// Limiter guards the credential endpoints. Nil disables limiting.
	Limiter *ratelimit.Limiter

	// Registry receives the HTTP metrics and backs the metrics endpoint.
	// Nil disables both.
	Registry *prometheus.Registry

	// Tracer creates request spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server represents the marketplace API server
type Server struct {
	config     *config.Config
	deps       Dependencies
	logger     log.Logger
	engine     *gin.Engine
	httpServer *http.Server
	mu         sync.Mutex
	running    bool
}

// NewServer creates the server and registers every route
func NewServer(cfg *config.Config, deps Dependencies, logger log.Logger) (*Server, error) {
	if deps.Repo == nil || deps.Files == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("repository, file store and token validator are required")
	}
	if deps.Accounts == nil || deps.Portfolios == nil || deps.Admins == nil {
		return nil, fmt.Errorf("account, portfolio and admin services are required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With(log.Component("server")),
		engine: gin.New(),
	}
	if err := s.setupMiddleware(); err != nil {
		return nil, err
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           cfg.Server.Address,
		Handler:        s.engine,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupMiddleware() error {
	s.engine.Use(middleware.Recovery(s.logger), middleware.RequestID())

	if s.deps.Tracer != nil {
		s.engine.Use(middleware.NewTracingMiddleware(s.deps.Tracer, nil).Handler())
	}
	if s.deps.Registry != nil {
		pm, err := middleware.NewPrometheusMiddleware(s.config.Metrics.Namespace, s.deps.Registry)
		if err != nil {
			return fmt.Errorf("failed to register HTTP metrics: %w", err)
		}
		s.engine.Use(pm.Handler())
	}

	s.engine.Use(
		middleware.NewAccessLogMiddleware(&s.config.Logging.AccessLog, s.logger).Handler(),
		middleware.NewCORSMiddleware(&s.config.CORS).Handler(),
		middleware.BodyLimit(s.config.Server.MaxUploadBytes),
	)
	return nil
}

func (s *Server) setupRoutes() {
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handler.ErrorResponse{Error: "ROUTE_NOT_FOUND", Message: "Route not found"})
	})

	s.engine.GET("/health", s.handleHealth)
	if s.deps.Registry != nil {
		metricsPath := s.config.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		s.engine.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{Registry: s.deps.Registry})))
	}
	s.engine.GET(filestore.URLPrefix+"/*filepath", s.handleUpload)
	s.engine.HEAD(filestore.URLPrefix+"/*filepath", s.handleUpload)

	jwt := jwtmw.NewJWTMiddleware(s.deps.Tokens)
	requireAuth := jwt.RequireAuth()
	requireUser := jwt.RequireRole(market.RoleUser)
	requireAdmin := jwt.RequireRole(market.RoleAdmin)

	limited := func(c *gin.Context) { c.Next() }
	if s.deps.Limiter != nil {
		limited = ratelimit.Middleware(s.deps.Limiter)
	}

	api := s.engine.Group("/api")
	handler.NewAuthHandler(s.deps.Accounts, s.logger).RegisterRoutes(api, requireUser, limited)
	handler.NewAccountHandler(s.deps.Accounts, s.logger).RegisterRoutes(api, requireAuth, requireAdmin)
	handler.NewPortfolioHandler(s.deps.Portfolios, s.logger).RegisterRoutes(api, requireAuth)
	handler.NewAdminHandler(s.deps.Admins, s.deps.Portfolios, s.logger).RegisterRoutes(api, requireAdmin, limited)
}

// handleHealth reports the state of the repository and the key-value store
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true

	repo := s.deps.Repo.Health(ctx)
	components["database"] = repo
	if repo.Status != "healthy" {
		healthy = false
	}
	if s.deps.Store != nil {
		st := s.deps.Store.Health(ctx)
		components["store"] = st
		if st.Status != "healthy" {
			healthy = false
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
		"timestamp":  time.Now(),
	})
}

// handleUpload serves a stored upload with range support
func (s *Server) handleUpload(c *gin.Context) {
	stored := path.Join(filestore.URLPrefix, c.Param("filepath"))
	f, err := s.deps.Files.Open(stored)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, filestore.ErrInvalidPath) {
			s.logger.WithContext(c.Request.Context()).Error("Failed to open upload",
				log.String(log.FieldFilePath, stored), log.Error(err))
		}
		c.JSON(http.StatusNotFound, handler.ErrorResponse{Error: "FILE_NOT_FOUND", Message: "File not found"})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, handler.ErrorResponse{Error: "FILE_NOT_FOUND", Message: "File not found"})
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}

// Start starts serving in the background. Errors other than a clean
// shutdown are delivered on the returned channel.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, fmt.Errorf("server is already running")
	}
	s.running = true

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", log.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error", log.Error(err))
			errCh <- err
		}
		close(errCh)
	}()
	return errCh, nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown error", log.Error(err))
		return err
	}
	s.logger.Info("Server stopped")
	return nil
}

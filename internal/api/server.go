package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/floranet-go/internal/api/middleware"
	v2 "github.com/tphakala/floranet-go/internal/api/v2"
	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/logger"
)

// Server is the main HTTP server for FloraNet-Go.
// It manages the Echo framework instance, middleware, and all HTTP routes.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	logger   logger.Logger

	deps v2.Deps

	apiController *v2.Controller

	wg        sync.WaitGroup
	startTime time.Time
	listener  net.Listener
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithDeps sets the collaborators served by the API.
func WithDeps(deps v2.Deps) ServerOption {
	return func(s *Server) { s.deps = deps }
}

// WithListener serves on an already bound listener instead of the configured port.
func WithListener(l net.Listener) ServerOption {
	return func(s *Server) { s.listener = l }
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		settings:  settings,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = GetLogger()
	}
	if s.deps.MediaPrefix == "" {
		s.deps.MediaPrefix = mediaPrefix(settings.Storage.PublicBase)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.logger.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Bool("admin_auth", config.AdminPasswordHash != ""),
		logger.Bool("debug", config.Debug))

	return s, nil
}

// mediaPrefix extracts the URL path from the public base, which may be an
// absolute URL when files are fronted by another host.
func mediaPrefix(publicBase string) string {
	if publicBase == "" {
		return ""
	}
	u, err := url.Parse(publicBase)
	if err != nil {
		return ""
	}
	return u.Path
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestID())
	s.echo.Use(mw.NewRequestLogger(s.logger))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins

	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	opts := []v2.Option{
		v2.WithLogger(s.logger.Module("v2")),
		v2.WithAuthMiddleware(mw.NewAdminAuth(s.config.AdminUser, s.config.AdminPasswordHash)),
		v2.WithSubmitLimiter(mw.NewRateLimit(s.config.RateLimit, s.config.Burst)),
	}
	if s.settings.Storage.MaxUploadSize > 0 {
		opts = append(opts, v2.WithMaxUploadSize(s.settings.Storage.MaxUploadSize))
	}
	s.apiController = v2.New(s.echo, s.deps, opts...)

	s.logger.Info("routes initialized", logger.String("api_version", "v2"))
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.settings.Version,
		"build_date":     s.settings.BuildDate,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Start begins serving HTTP requests in a background goroutine and returns
// immediately. Use Shutdown to stop the server.
func (s *Server) Start() {
	s.wg.Go(func() {
		if err := s.startBlocking(); err != nil {
			s.logger.Error("server error", logger.Error(err))
		}
	})
}

func (s *Server) startBlocking() error {
	var err error
	if s.listener != nil {
		s.echo.Listener = s.listener
		s.logger.Info("starting HTTP server", logger.String("address", s.listener.Addr().String()))
		err = s.echo.Start("")
	} else {
		s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))
		err = s.echo.Start(s.config.Address())
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.wg.Wait()

	s.logger.Info("server shutdown complete")
	return nil
}

// APIController returns the v2 API controller.
func (s *Server) APIController() *v2.Controller {
	return s.apiController
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

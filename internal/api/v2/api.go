// Package api implements the FloraNet JSON API under /api/v2: observation
// submission and lookup, and the admin moderation routes.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/datastore/repository"
	"github.com/tphakala/floranet-go/internal/logger"
	"github.com/tphakala/floranet-go/internal/moderation"
	"github.com/tphakala/floranet-go/internal/observation"
)

// Ingester runs one observation submission.
type Ingester interface {
	Ingest(ctx context.Context, sub observation.Submission) (*observation.Result, error)
}

// ObservationReader serves observation lookups and the moderation queue.
type ObservationReader interface {
	GetWithResults(ctx context.Context, id uint) (*observation.View, error)
	ListByStatus(ctx context.Context, statuses []entities.ModerationStatus, pageSize, offset int, filters repository.ObservationFilters) ([]repository.ObservationSummary, error)
}

// Moderator runs admin moderation actions.
type Moderator interface {
	ConfirmExisting(ctx context.Context, id uint, sel moderation.ExistingSpecies) (*moderation.Outcome, error)
	ConfirmNew(ctx context.Context, id uint, ns moderation.NewSpecies) (*moderation.Outcome, error)
	Reject(ctx context.Context, id uint, notes *string) (*moderation.Outcome, error)
	UpdateStatus(ctx context.Context, id uint, status entities.ModerationStatus, notes *string) (*moderation.Outcome, error)
}

// MediaStore stores uploads and maps stored paths to URLs.
type MediaStore interface {
	Fs() afero.Fs
	Root() string
	Uploads() string
	UploadPath(originalName string) string
	Save(r io.Reader, dst string) (int64, error)
	Remove(p string) error
	PublicURL(p string) string
}

// Deps are the collaborators the controller serves.
type Deps struct {
	Ingester     Ingester
	Observations ObservationReader
	Moderator    Moderator
	Media        MediaStore
	MediaPrefix  string // URL path stored files are served under, e.g. /media
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	ingester     Ingester
	observations ObservationReader
	moderator    Moderator
	media        MediaStore
	mediaPrefix  string

	maxUpload      int64
	submitLimiter  echo.MiddlewareFunc
	authMiddleware echo.MiddlewareFunc
	logger         logger.Logger
	startTime      time.Time
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithAuthMiddleware sets the middleware guarding the moderation routes.
func WithAuthMiddleware(mw echo.MiddlewareFunc) Option {
	return func(c *Controller) { c.authMiddleware = mw }
}

// WithSubmitLimiter sets the middleware rate limiting observation submissions.
func WithSubmitLimiter(mw echo.MiddlewareFunc) Option {
	return func(c *Controller) { c.submitLimiter = mw }
}

// WithMaxUploadSize caps the size of a submitted image.
func WithMaxUploadSize(n int64) Option {
	return func(c *Controller) { c.maxUpload = n }
}

// WithLogger sets the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates the API controller and registers its routes on e.
func New(e *echo.Echo, deps Deps, opts ...Option) *Controller {
	c := &Controller{
		Echo:         e,
		ingester:     deps.Ingester,
		observations: deps.Observations,
		moderator:    deps.Moderator,
		media:        deps.Media,
		mediaPrefix:  deps.MediaPrefix,
		maxUpload:    20 << 20,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Global().Module("api")
	}
	if c.authMiddleware == nil {
		c.logger.Warn("moderation routes registered without authentication")
		c.authMiddleware = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	c.Group = e.Group("/api/v2")
	c.initRoutes()
	return c
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	submit := []echo.MiddlewareFunc{}
	if c.submitLimiter != nil {
		submit = append(submit, c.submitLimiter)
	}
	c.Group.POST("/observations", c.SubmitObservation, submit...)
	c.Group.GET("/observations/:id", c.GetObservation)

	c.Group.GET("/moderation/queue", c.GetModerationQueue, c.authMiddleware)
	c.Group.POST("/observations/:id/confirm", c.ConfirmObservation, c.authMiddleware)
	c.Group.POST("/observations/:id/confirm-new", c.ConfirmNewSpecies, c.authMiddleware)
	c.Group.POST("/observations/:id/reject", c.RejectObservation, c.authMiddleware)
	c.Group.PATCH("/observations/:id/status", c.UpdateObservationStatus, c.authMiddleware)

	c.initMediaRoutes()
}

// HealthCheck reports that the API is serving.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(c.startTime).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/logger"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusFor maps an error category to its HTTP status.
func StatusFor(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryWorkerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps server-side failure details out of responses.
func publicMessage(err error, status int) string {
	switch {
	case status < http.StatusInternalServerError:
		return err.Error()
	case status == http.StatusServiceUnavailable:
		return "classifier unavailable, try again later"
	case errors.IsFileSystem(err):
		return "file storage failed"
	case errors.IsStorage(err):
		return "database operation failed"
	default:
		return "internal error"
	}
}

// HandleError writes err as an ErrorResponse with the status of its category.
func (c *Controller) HandleError(ctx echo.Context, err error) error {
	if stderrors.Is(err, context.Canceled) {
		// Client went away; nobody reads the body
		return ctx.NoContent(499)
	}

	status := StatusFor(err)
	kind := string(errors.CategoryOf(err))
	resp := ErrorResponse{
		Error:     publicMessage(err, status),
		Kind:      kind,
		RequestID: ctx.Response().Header().Get(echo.HeaderXRequestID),
	}

	log := c.logger.WithContext(ctx.Request().Context())
	fields := []logger.Field{
		logger.String("method", ctx.Request().Method),
		logger.String("path", ctx.Path()),
		logger.Int("status", status),
		logger.String("kind", kind),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
	} else {
		log.Debug("request rejected", fields...)
	}

	return ctx.JSON(status, resp)
}

func validationError(msg string) error {
	return errors.Newf("%s", msg).
		Component("api").
		Category(errors.CategoryValidation).
		Build()
}

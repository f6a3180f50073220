package api

import (
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/logger"
	"github.com/tphakala/floranet-go/internal/observation"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".heic": true,
	".tif":  true,
	".tiff": true,
}

// SubmitObservation stores the uploaded photo, classifies it and records
// the observation with its ranked results.
func (c *Controller) SubmitObservation(ctx echo.Context) error {
	file, err := ctx.FormFile("image")
	if err != nil {
		return c.HandleError(ctx, validationError("multipart field \"image\" is required"))
	}
	if file.Size > c.maxUpload {
		return c.HandleError(ctx, validationError(fmt.Sprintf("image exceeds %d bytes", c.maxUpload)))
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !imageExtensions[ext] {
		return c.HandleError(ctx, validationError(fmt.Sprintf("unsupported image type %q", ext)))
	}

	sub, err := parseSubmission(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	src, err := file.Open()
	if err != nil {
		return c.HandleError(ctx, validationError("could not read uploaded image"))
	}
	defer src.Close()

	dst := c.media.UploadPath(file.Filename)
	if _, err := c.media.Save(src, dst); err != nil {
		return c.HandleError(ctx, err)
	}
	sub.ImageRef = dst

	res, err := c.ingester.Ingest(ctx.Request().Context(), sub)
	if err != nil {
		// These fail before any row references the upload
		if errors.IsWorkerUnavailable(err) || errors.IsValidation(err) {
			if rmErr := c.media.Remove(dst); rmErr != nil {
				c.logger.Warn("could not remove unused upload",
					logger.String("path", dst),
					logger.Error(rmErr))
			}
		}
		return c.HandleError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, c.submissionResponse(res))
}

// parseSubmission reads the optional form fields of a submission.
// Unparseable coordinates are rejected; NaN and infinities are stored as 0.
func parseSubmission(ctx echo.Context) (observation.Submission, error) {
	var sub observation.Submission

	sub.SubmitterID = optionalString(ctx.FormValue("submitter_id"))
	sub.LocationName = strings.TrimSpace(ctx.FormValue("location_name"))
	sub.Source = strings.TrimSpace(ctx.FormValue("source"))
	sub.Notes = optionalString(ctx.FormValue("notes"))

	var err error
	if sub.Latitude, err = optionalFloat(ctx, "lat", -90, 90); err != nil {
		return sub, err
	}
	if sub.Longitude, err = optionalFloat(ctx, "lng", -180, 180); err != nil {
		return sub, err
	}

	if v := strings.TrimSpace(ctx.FormValue("topk")); v != "" {
		k, convErr := strconv.Atoi(v)
		if convErr != nil {
			return sub, validationError("topk must be an integer")
		}
		sub.TopK = k
	}

	return sub, nil
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func optionalFloat(ctx echo.Context, field string, lo, hi float64) (*float64, error) {
	raw := strings.TrimSpace(ctx.FormValue(field))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, validationError(fmt.Sprintf("%s must be a number", field))
	}
	if !math.IsNaN(v) && !math.IsInf(v, 0) && (v < lo || v > hi) {
		return nil, validationError(fmt.Sprintf("%s must be within [%g, %g]", field, lo, hi))
	}
	return &v, nil
}

// GetObservation returns one observation with its ranked results.
func (c *Controller) GetObservation(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	view, err := c.observations.GetWithResults(ctx.Request().Context(), id)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, c.observationResponse(view.Observation, view.Results))
}

func parseID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 0)
	if err != nil || id == 0 {
		return 0, validationError("observation id must be a positive integer")
	}
	return uint(id), nil
}

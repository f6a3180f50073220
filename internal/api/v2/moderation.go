package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/datastore/repository"
	"github.com/tphakala/floranet-go/internal/moderation"
)

// Queue paging limits.
const (
	DefaultQueueLimit = 20
	MaxQueueLimit     = 100
)

// GetModerationQueue lists observations for review, newest first. The
// status parameter takes a comma separated list and defaults to pending.
func (c *Controller) GetModerationQueue(ctx echo.Context) error {
	statuses, err := parseStatuses(ctx.QueryParam("status"))
	if err != nil {
		return c.HandleError(ctx, err)
	}

	limit, err := intParam(ctx, "limit", DefaultQueueLimit)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	if limit <= 0 || limit > MaxQueueLimit {
		return c.HandleError(ctx, validationError("limit must be between 1 and 100"))
	}
	offset, err := intParam(ctx, "offset", 0)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	if offset < 0 {
		return c.HandleError(ctx, validationError("offset must not be negative"))
	}

	var filters repository.ObservationFilters
	if v := ctx.QueryParam("auto_flagged"); v != "" {
		b, convErr := strconv.ParseBool(v)
		if convErr != nil {
			return c.HandleError(ctx, validationError("auto_flagged must be true or false"))
		}
		filters.AutoFlagged = &b
	}
	if filters.MinConfidence, err = confidenceParam(ctx, "min_confidence"); err != nil {
		return c.HandleError(ctx, err)
	}
	if filters.MaxConfidence, err = confidenceParam(ctx, "max_confidence"); err != nil {
		return c.HandleError(ctx, err)
	}

	// One extra row tells whether another page exists
	rows, err := c.observations.ListByStatus(ctx.Request().Context(), statuses, limit+1, offset, filters)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	resp := QueueResponse{
		Items:  make([]QueueItem, 0, min(len(rows), limit)),
		Limit:  limit,
		Offset: offset,
	}
	if len(rows) > limit {
		resp.HasMore = true
		rows = rows[:limit]
	}
	for i := range rows {
		resp.Items = append(resp.Items, c.queueItem(&rows[i]))
	}

	return ctx.JSON(http.StatusOK, resp)
}

func parseStatuses(raw string) ([]entities.ModerationStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return []entities.ModerationStatus{entities.StatusPending}, nil
	}
	var out []entities.ModerationStatus
	for part := range strings.SplitSeq(raw, ",") {
		s := entities.ModerationStatus(strings.ToLower(strings.TrimSpace(part)))
		if !s.Valid() {
			return nil, validationError("unknown status " + strconv.Quote(string(s)))
		}
		out = append(out, s)
	}
	return out, nil
}

func intParam(ctx echo.Context, name string, def int) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validationError(name + " must be an integer")
	}
	return v, nil
}

func confidenceParam(ctx echo.Context, name string) (*float64, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
		return nil, validationError(name + " must be a number between 0 and 1")
	}
	return &v, nil
}

// ConfirmObservation verifies an observation as an existing species, given
// by species_id or scientific_name.
func (c *Controller) ConfirmObservation(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	var req ConfirmRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, validationError("malformed request body"))
	}

	out, err := c.moderator.ConfirmExisting(ctx.Request().Context(), id, moderation.ExistingSpecies{
		SpeciesID:      req.SpeciesID,
		ScientificName: req.ScientificName,
		Notes:          req.Notes,
	})
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, c.moderationResponse(out))
}

// ConfirmNewSpecies creates a species from the request and verifies the
// observation as that species.
func (c *Controller) ConfirmNewSpecies(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	var req ConfirmNewRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, validationError("malformed request body"))
	}

	out, err := c.moderator.ConfirmNew(ctx.Request().Context(), id, moderation.NewSpecies{
		ScientificName: req.ScientificName,
		CommonName:     req.CommonName,
		IsEndangered:   req.IsEndangered,
		Description:    req.Description,
		Notes:          req.Notes,
	})
	if err != nil {
		return c.HandleError(ctx, err)
	}

	status := http.StatusOK
	if out.Changed {
		status = http.StatusCreated
	}
	return ctx.JSON(status, c.moderationResponse(out))
}

// RejectObservation marks an observation rejected.
func (c *Controller) RejectObservation(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	var req RejectRequest
	if ctx.Request().ContentLength != 0 {
		if err := ctx.Bind(&req); err != nil {
			return c.HandleError(ctx, validationError("malformed request body"))
		}
	}

	out, err := c.moderator.Reject(ctx.Request().Context(), id, req.Notes)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, c.moderationResponse(out))
}

// UpdateObservationStatus sets the status directly: verified needs a bound
// species, rejected behaves as a rejection, pending only updates notes.
func (c *Controller) UpdateObservationStatus(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	var req StatusRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, validationError("malformed request body"))
	}
	req.Status = entities.ModerationStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))
	if req.Status == "" {
		return c.HandleError(ctx, validationError("status is required"))
	}

	out, err := c.moderator.UpdateStatus(ctx.Request().Context(), id, req.Status, req.Notes)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, c.moderationResponse(out))
}

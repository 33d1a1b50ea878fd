// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tobalt/cityalerts/internal/i18n"
	"github.com/tobalt/cityalerts/internal/models"
	"github.com/tobalt/cityalerts/internal/services/alerts"
	"github.com/tobalt/cityalerts/internal/services/magiclink"
)

// ListAlerts returns the published alerts visible in the requested date
// window. A single-day date parameter sets both bounds; defaults to
// today through the configured range when no dates are given.
func (h *Handlers) ListAlerts(c echo.Context) error {
	from := c.QueryParam("from")
	to := c.QueryParam("to")
	if date := c.QueryParam("date"); date != "" {
		from, to = date, date
	}
	if from == "" && to == "" {
		from, to = h.alerts.DefaultRange()
	}
	if from == "" {
		from = to
	}
	if to == "" {
		to = from
	}

	var categoryID int64
	if raw := c.QueryParam("category"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fail(c, http.StatusBadRequest, "alert_invalid")
		}
		categoryID = id
	}

	list, err := h.alerts.QueryVisible(c.Request().Context(), from, to, categoryID)
	if err != nil {
		if errors.Is(err, alerts.ErrInvalidInput) {
			return fail(c, http.StatusBadRequest, "alert_invalid")
		}
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"alerts": list,
		"total":  len(list),
		"from":   from,
		"to":     to,
	})
}

type submitAlertRequest struct {
	Token              string     `json:"token"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Date               string     `json:"date"`
	StartTime          string     `json:"start_time"`
	EndDate            string     `json:"end_date"`
	EndTime            string     `json:"end_time"`
	Severity           string     `json:"severity"`
	Location           string     `json:"location"`
	Pinned             bool       `json:"pinned"`
	CategoryIDs        []int64    `json:"category_ids"`
	ScheduledPublishAt *time.Time `json:"scheduled_publish_at"`
}

// SubmitAlert creates an alert authorized by a magic link token. The
// token is consumed only after the alert is durably stored; a storage
// failure leaves the link usable for a retry.
func (h *Handlers) SubmitAlert(c echo.Context) error {
	var req submitAlertRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "alert_invalid")
	}

	ctx := c.Request().Context()
	info, err := h.magicLinks.Verify(ctx, req.Token)
	if err != nil {
		return tokenError(c, err)
	}

	alert, err := h.alerts.Submit(ctx, alerts.SubmitInput{
		Title:              req.Title,
		Body:               req.Description,
		StartDate:          req.Date,
		StartTime:          req.StartTime,
		EndDate:            req.EndDate,
		EndTime:            req.EndTime,
		Severity:           req.Severity,
		Location:           req.Location,
		Pinned:             req.Pinned,
		CategoryIDs:        req.CategoryIDs,
		ScheduledPublishAt: req.ScheduledPublishAt,
	}, info.Email)
	if err != nil {
		if errors.Is(err, alerts.ErrInvalidInput) {
			return fail(c, http.StatusBadRequest, "alert_invalid")
		}
		return internalError(c, err)
	}

	if err := h.magicLinks.Consume(ctx, req.Token); err != nil {
		// The alert exists; losing the consume only leaves the link
		// valid a little longer.
		slog.Error("consuming magic token failed", "error", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"alert_id": alert.ID,
		"status":   alert.Status,
		"message":  submitMessage(c, alert.Status),
	})
}

func submitMessage(c echo.Context, status string) string {
	ctx := c.Request().Context()
	switch status {
	case models.StatusScheduled:
		return i18n.T(ctx, "alert_scheduled")
	case models.StatusPending:
		return i18n.T(ctx, "alert_pending")
	default:
		return i18n.T(ctx, "alert_submitted")
	}
}

// MyAlerts lists the alerts owned by the token's email. Read-only, so
// the token is verified but not consumed.
func (h *Handlers) MyAlerts(c echo.Context) error {
	ctx := c.Request().Context()
	info, err := h.magicLinks.Verify(ctx, c.QueryParam("token"))
	if err != nil {
		return tokenError(c, err)
	}

	list, err := h.alerts.MyAlerts(ctx, info.Email)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"alerts":  list,
		"email":   info.Email,
	})
}

type updateAlertRequest struct {
	Token   string `json:"token"`
	EndDate string `json:"end_date"`
	EndTime string `json:"end_time"`
}

// UpdateAlert changes the end date or end time of an owned alert.
func (h *Handlers) UpdateAlert(c echo.Context) error {
	id, err := alertID(c)
	if err != nil {
		return fail(c, http.StatusNotFound, "alert_not_found")
	}

	var req updateAlertRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "alert_invalid")
	}

	ctx := c.Request().Context()
	info, err := h.magicLinks.Verify(ctx, req.Token)
	if err != nil {
		return tokenError(c, err)
	}

	updated, err := h.alerts.UpdateEndDate(ctx, id, info.Email, req.EndDate, req.EndTime)
	if err != nil {
		return alertError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"alert":   updated,
		"message": i18n.T(ctx, "alert_updated"),
	})
}

type markSolvedRequest struct {
	Token string `json:"token"`
}

// MarkSolved archives an owned alert with the solved flag set.
func (h *Handlers) MarkSolved(c echo.Context) error {
	id, err := alertID(c)
	if err != nil {
		return fail(c, http.StatusNotFound, "alert_not_found")
	}

	var req markSolvedRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "alert_invalid")
	}

	ctx := c.Request().Context()
	info, err := h.magicLinks.Verify(ctx, req.Token)
	if err != nil {
		return tokenError(c, err)
	}

	solved, err := h.alerts.MarkSolved(ctx, id, info.Email)
	if err != nil {
		return alertError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"alert":   solved,
		"message": i18n.T(ctx, "alert_solved"),
	})
}

func alertID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func alertError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, alerts.ErrNotFound):
		return fail(c, http.StatusNotFound, "alert_not_found")
	case errors.Is(err, alerts.ErrForbidden):
		return fail(c, http.StatusForbidden, "alert_forbidden")
	case errors.Is(err, alerts.ErrInvalidInput):
		return fail(c, http.StatusBadRequest, "alert_invalid")
	default:
		return internalError(c, err)
	}
}

func tokenError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, magiclink.ErrInvalidFormat), errors.Is(err, magiclink.ErrNotFound):
		return invalidToken(c, "token_invalid")
	case errors.Is(err, magiclink.ErrExpired):
		return invalidToken(c, "token_expired")
	case errors.Is(err, magiclink.ErrAlreadyUsed):
		return invalidToken(c, "token_used")
	default:
		return internalError(c, err)
	}
}

// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

// Package handlers contains the JSON API handlers.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tobalt/cityalerts/internal/i18n"
	"github.com/tobalt/cityalerts/internal/repository"
	"github.com/tobalt/cityalerts/internal/services/alerts"
	"github.com/tobalt/cityalerts/internal/services/captcha"
	"github.com/tobalt/cityalerts/internal/services/magiclink"
	"github.com/tobalt/cityalerts/internal/services/subscribers"
)

// MagicLinkMailer delivers a freshly issued submission link.
type MagicLinkMailer interface {
	SendMagicLink(ctx context.Context, to, secret string, expiryMinutes int) error
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	repo        *repository.Repository
	magicLinks  *magiclink.Service
	alerts      *alerts.Service
	subscribers *subscribers.Service
	captcha     *captcha.Verifier // nil when captcha is disabled
	mailer      MagicLinkMailer
	tokenExpiry int // minutes, echoed into the magic-link email
}

// New creates a new Handlers instance.
func New(
	repo *repository.Repository,
	magicLinks *magiclink.Service,
	alertSvc *alerts.Service,
	subscriberSvc *subscribers.Service,
	captchaVerifier *captcha.Verifier,
	mailer MagicLinkMailer,
	tokenExpiryMinutes int,
) *Handlers {
	return &Handlers{
		repo:        repo,
		magicLinks:  magicLinks,
		alerts:      alertSvc,
		subscribers: subscriberSvc,
		captcha:     captchaVerifier,
		mailer:      mailer,
		tokenExpiry: tokenExpiryMinutes,
	}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Categories lists all categories with their published alert counts.
func (h *Handlers) Categories(c echo.Context) error {
	categories, err := h.repo.ListCategories(c.Request().Context())
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"categories": categories,
	})
}

func fail(c echo.Context, status int, messageID string) error {
	return c.JSON(status, map[string]any{
		"success": false,
		"message": i18n.T(c.Request().Context(), messageID),
	})
}

func internalError(c echo.Context, err error) error {
	slog.Error("handler failed", "path", c.Path(), "error", err)
	return fail(c, http.StatusInternalServerError, "internal_error")
}

// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tobalt/cityalerts/internal/i18n"
	"github.com/tobalt/cityalerts/internal/services/captcha"
	"github.com/tobalt/cityalerts/internal/services/magiclink"
)

type requestLinkRequest struct {
	Email        string `json:"email"`
	CaptchaToken string `json:"captcha_token"`
}

// RequestLink issues a magic link and emails it. Unknown addresses get
// the same generic answer as approved ones, so the endpoint cannot be
// used to probe the approved-sender registry.
func (h *Handlers) RequestLink(c echo.Context) error {
	var req requestLinkRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "alert_invalid")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return fail(c, http.StatusBadRequest, "subscribe_invalid_email")
	}

	ctx := c.Request().Context()
	if h.captcha != nil {
		if err := h.captcha.Verify(ctx, req.CaptchaToken, "request_link"); err != nil {
			if errors.Is(err, captcha.ErrRejected) {
				return fail(c, http.StatusBadRequest, "captcha_failed")
			}
			return internalError(c, err)
		}
	}

	link, err := h.magicLinks.RequestLink(ctx, email)
	switch {
	case errors.Is(err, magiclink.ErrNotApproved):
		return accepted(c)
	case errors.Is(err, magiclink.ErrRateLimited):
		return fail(c, http.StatusTooManyRequests, "rate_limited")
	case err != nil:
		return internalError(c, err)
	}

	if err := h.mailer.SendMagicLink(ctx, email, link.Secret, h.tokenExpiry); err != nil {
		// The token exists and counts against the rate limit either
		// way; report failure so the user knows to retry.
		return internalError(c, err)
	}

	slog.Info("magic link issued", "email", email)
	return accepted(c)
}

func accepted(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": i18n.T(c.Request().Context(), "request_link_accepted"),
	})
}

// VerifyToken reports whether a magic link token is still usable. The
// check is read-only; the token survives any number of verifications.
func (h *Handlers) VerifyToken(c echo.Context) error {
	info, err := h.magicLinks.Verify(c.Request().Context(), c.Param("token"))
	switch {
	case errors.Is(err, magiclink.ErrInvalidFormat), errors.Is(err, magiclink.ErrNotFound):
		return invalidToken(c, "token_invalid")
	case errors.Is(err, magiclink.ErrExpired):
		return invalidToken(c, "token_expired")
	case errors.Is(err, magiclink.ErrAlreadyUsed):
		return invalidToken(c, "token_used")
	case err != nil:
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"valid":      true,
		"email":      info.Email,
		"expires_at": info.ExpiresAt,
	})
}

func invalidToken(c echo.Context, messageID string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{
		"valid":   false,
		"message": i18n.T(c.Request().Context(), messageID),
	})
}

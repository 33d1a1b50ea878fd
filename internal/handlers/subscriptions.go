// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tobalt/cityalerts/internal/i18n"
	"github.com/tobalt/cityalerts/internal/services/captcha"
	"github.com/tobalt/cityalerts/internal/services/subscribers"
)

type subscribeRequest struct {
	Email        string  `json:"email"`
	CategoryIDs  []int64 `json:"category_ids"`
	CaptchaToken string  `json:"captcha_token"`
}

// Subscribe registers or updates a notification subscription. Open to
// the public, so it carries the captcha check when enabled.
func (h *Handlers) Subscribe(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "subscribe_invalid_email")
	}

	ctx := c.Request().Context()
	if h.captcha != nil {
		if err := h.captcha.Verify(ctx, req.CaptchaToken, "subscribe"); err != nil {
			if errors.Is(err, captcha.ErrRejected) {
				return fail(c, http.StatusBadRequest, "captcha_failed")
			}
			return internalError(c, err)
		}
	}

	if err := h.subscribers.Subscribe(ctx, req.Email, req.CategoryIDs); err != nil {
		if errors.Is(err, subscribers.ErrInvalidEmail) {
			return fail(c, http.StatusBadRequest, "subscribe_invalid_email")
		}
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": i18n.T(ctx, "subscribe_accepted"),
	})
}

// VerifySubscription confirms a subscription via its emailed token.
func (h *Handlers) VerifySubscription(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.subscribers.Verify(ctx, c.Param("token")); err != nil {
		if errors.Is(err, subscribers.ErrInvalidToken) {
			return fail(c, http.StatusBadRequest, "subscription_token_invalid")
		}
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": i18n.T(ctx, "subscription_verified"),
	})
}

// Unsubscribe removes a subscription via its emailed token.
func (h *Handlers) Unsubscribe(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.subscribers.Unsubscribe(ctx, c.Param("token")); err != nil {
		if errors.Is(err, subscribers.ErrInvalidToken) {
			return fail(c, http.StatusBadRequest, "unsubscribe_token_invalid")
		}
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": i18n.T(ctx, "unsubscribed"),
	})
}

// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tobalt/cityalerts/internal/config"
	"github.com/tobalt/cityalerts/internal/database"
	"github.com/tobalt/cityalerts/internal/handlers"
	"github.com/tobalt/cityalerts/internal/i18n"
	"github.com/tobalt/cityalerts/internal/repository"
	"github.com/tobalt/cityalerts/internal/scheduler"
	"github.com/tobalt/cityalerts/internal/services/activity"
	"github.com/tobalt/cityalerts/internal/services/alerts"
	"github.com/tobalt/cityalerts/internal/services/captcha"
	"github.com/tobalt/cityalerts/internal/services/email"
	"github.com/tobalt/cityalerts/internal/services/magiclink"
	"github.com/tobalt/cityalerts/internal/services/notify"
	"github.com/tobalt/cityalerts/internal/services/subscribers"
	"github.com/urfave/cli/v3"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database (migrations run inside Open)
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	repo := repository.New(db)
	logger := slog.Default()

	// Outbound mail
	mailer := email.NewMailer(cfg.SMTP, logger)
	mailSvc, err := email.NewService(mailer, cfg.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to init email service: %w", err)
	}

	// Background jobs
	sched := scheduler.New(logger)
	sched.Start(ctx)
	defer sched.Stop()

	// Services
	magicLinks := magiclink.NewService(repo, cfg.Auth)
	if seedErr := magicLinks.SeedApprovedSenders(ctx, cfg.Auth.ApprovedSenders); seedErr != nil {
		return fmt.Errorf("failed to seed approved senders: %w", seedErr)
	}

	alertSvc := alerts.NewService(repo, cfg.Alerts, cfg.Auth.RequireApproval, logger)
	alertSvc.Listen(activity.NewRecorder(repo, logger).HandleAlertEvent)
	alertSvc.Listen(notify.NewDispatcher(repo, mailSvc, sched, cfg.Notify, logger).HandleAlertEvent)

	subscriberSvc := subscribers.NewService(repo, mailSvc, logger)

	var captchaVerifier *captcha.Verifier
	if cfg.Captcha.Enabled {
		captchaVerifier = captcha.NewVerifier(cfg.Captcha.SecretKey, cfg.Captcha.MinScore, logger)
	}

	// Sweeps
	sched.Every("publish sweep", time.Duration(cfg.Alerts.PublishSweepMinutes)*time.Minute, func(ctx context.Context) {
		alertSvc.RunPublishSweep(ctx, time.Now())
	})
	sched.Every("cleanup sweep", time.Duration(cfg.Alerts.CleanupSweepMinutes)*time.Minute, func(ctx context.Context) {
		alertSvc.RunExpirySweep(ctx, time.Now())
		if _, cleanupErr := magicLinks.CleanupExpired(ctx); cleanupErr != nil {
			slog.Error("token cleanup failed", "error", cleanupErr)
		}
	})

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, handlers.New(repo, magicLinks, alertSvc, subscriberSvc, captchaVerifier, mailSvc, cfg.Auth.TokenExpiryMinutes))

	return startWithGracefulShutdown(e, cfg)
}

func setupRoutes(e *echo.Echo, h *handlers.Handlers) {
	e.GET("/health", h.Health)

	api := e.Group("/api/v1")
	api.GET("/alerts", h.ListAlerts)
	api.GET("/categories", h.Categories)
	api.POST("/request-link", h.RequestLink)
	api.GET("/verify-token/:token", h.VerifyToken)
	api.POST("/submit-alert", h.SubmitAlert)
	api.GET("/my-alerts", h.MyAlerts)
	api.POST("/update-alert/:id", h.UpdateAlert)
	api.POST("/mark-solved/:id", h.MarkSolved)
	api.POST("/subscribe", h.Subscribe)
	api.GET("/verify-subscription/:token", h.VerifySubscription)
	api.GET("/unsubscribe/:token", h.Unsubscribe)
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

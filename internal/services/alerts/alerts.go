// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

// Package alerts owns the alert state machine: creation, visibility
// queries and the two periodic sweeps.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tobalt/cityalerts/internal/config"
	"github.com/tobalt/cityalerts/internal/models"
	"github.com/tobalt/cityalerts/internal/repository"
)

var (
	ErrInvalidInput = errors.New("invalid alert input")
	ErrForbidden    = errors.New("not the owner of this alert")
	ErrNotFound     = errors.New("alert not found")
)

const (
	visibleQueryLimit = 100
	myAlertsLimit     = 50
)

// EventKind identifies an alert lifecycle event.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventPublished EventKind = "published"
	EventExpired   EventKind = "expired"
	EventSolved    EventKind = "solved"
	EventUpdated   EventKind = "updated"
)

// Event is emitted synchronously on every alert transition. Actor is the
// submitter email for user-driven events and empty for sweep transitions.
type Event struct {
	Kind  EventKind
	Alert models.Alert
	Actor string
}

// Listener receives alert events. Listeners must not return errors; they
// handle and log their own failures so one listener cannot abort another.
type Listener func(ctx context.Context, ev Event)

// Service implements alert operations and the visibility/scheduling engine.
type Service struct {
	repo            *repository.Repository
	cfg             config.AlertsConfig
	requireApproval bool
	logger          *slog.Logger
	listeners       []Listener

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// NewService creates the alert service. requireApproval controls whether
// submissions start as pending instead of published.
func NewService(repo *repository.Repository, cfg config.AlertsConfig, requireApproval bool, logger *slog.Logger) *Service {
	return &Service{
		repo:            repo,
		cfg:             cfg,
		requireApproval: requireApproval,
		logger:          logger,
		Now:             time.Now,
	}
}

// Listen registers a listener for alert events. Not safe to call after the
// service is in use; wire listeners at startup.
func (s *Service) Listen(l Listener) {
	s.listeners = append(s.listeners, l)
}

func (s *Service) emit(ctx context.Context, ev Event) {
	for _, l := range s.listeners {
		l(ctx, ev)
	}
}

// SubmitInput is a new alert from a verified submitter or an operator.
type SubmitInput struct { //nolint:govet // fieldalignment: readability over optimization
	Title              string
	Body               string
	StartDate          string
	StartTime          string
	EndDate            string
	EndTime            string
	Severity           string
	Location           string
	Pinned             bool
	CategoryIDs        []int64
	ScheduledPublishAt *time.Time
}

func (in *SubmitInput) validate() error {
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !models.ValidDate(in.StartDate) {
		return fmt.Errorf("%w: start date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if in.EndDate != "" {
		if !models.ValidDate(in.EndDate) {
			return fmt.Errorf("%w: end date must be YYYY-MM-DD", ErrInvalidInput)
		}
		if in.EndDate < in.StartDate {
			return fmt.Errorf("%w: end date before start date", ErrInvalidInput)
		}
	}
	if in.Severity != "" && !models.ValidSeverity(in.Severity) {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, in.Severity)
	}
	return nil
}

// Submit creates an alert for submittedBy. The initial status follows the
// approval policy, except that a future scheduled publish time always
// yields a scheduled alert; a published alert never carries a pending
// schedule.
func (s *Service) Submit(ctx context.Context, in SubmitInput, submittedBy string) (*models.Alert, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.Now()
	severity := in.Severity
	if severity == "" {
		severity = models.SeverityNone
	}

	status := models.StatusPublished
	if s.requireApproval {
		status = models.StatusPending
	}
	if in.ScheduledPublishAt != nil && in.ScheduledPublishAt.After(now) {
		status = models.StatusScheduled
	}

	alert := &models.Alert{
		Title:              in.Title,
		Body:               in.Body,
		StartDate:          in.StartDate,
		StartTime:          in.StartTime,
		EndDate:            in.EndDate,
		EndTime:            in.EndTime,
		Severity:           severity,
		Location:           in.Location,
		Pinned:             in.Pinned,
		Status:             status,
		SubmittedBy:        submittedBy,
		ScheduledPublishAt: in.ScheduledPublishAt,
	}

	if err := s.repo.CreateAlert(ctx, alert, now); err != nil {
		return nil, fmt.Errorf("creating alert: %w", err)
	}
	if len(in.CategoryIDs) > 0 {
		if err := s.repo.SetAlertCategories(ctx, alert.ID, in.CategoryIDs); err != nil {
			return nil, fmt.Errorf("assigning categories: %w", err)
		}
	}

	created, err := s.repo.GetAlert(ctx, alert.ID)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, Event{Kind: EventCreated, Alert: *created, Actor: submittedBy})
	if created.Status == models.StatusPublished {
		s.emit(ctx, Event{Kind: EventPublished, Alert: *created, Actor: submittedBy})
	}
	return created, nil
}

// QueryVisible returns the published alerts visible in [from, to],
// optionally restricted to one category. Passing the same date twice
// queries a single day.
func (s *Service) QueryVisible(ctx context.Context, from, to string, categoryID int64) ([]models.Alert, error) {
	if !models.ValidDate(from) || !models.ValidDate(to) {
		return nil, fmt.Errorf("%w: dates must be YYYY-MM-DD", ErrInvalidInput)
	}
	return s.repo.ListVisibleAlerts(ctx, from, to, categoryID, visibleQueryLimit)
}

// DefaultRange returns the default listing window: today through
// today+dateRange days.
func (s *Service) DefaultRange() (from, to string) {
	now := s.Now()
	from = now.Format(models.DateFormat)
	to = now.AddDate(0, 0, s.cfg.DateRangeDays).Format(models.DateFormat)
	return from, to
}

// MyAlerts returns the alerts a submitter owns, newest first.
func (s *Service) MyAlerts(ctx context.Context, email string) ([]models.Alert, error) {
	return s.repo.ListAlertsBySubmitter(ctx, email, myAlertsLimit)
}

// Get retrieves a single alert.
func (s *Service) Get(ctx context.Context, id int64) (*models.Alert, error) {
	alert, err := s.repo.GetAlert(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return alert, err
}

// UpdateEndDate lets the owner shorten or extend a running alert.
func (s *Service) UpdateEndDate(ctx context.Context, id int64, email, endDate, endTime string) (*models.Alert, error) {
	alert, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.SubmittedBy != email {
		return nil, ErrForbidden
	}
	if endDate != "" {
		if !models.ValidDate(endDate) {
			return nil, fmt.Errorf("%w: end date must be YYYY-MM-DD", ErrInvalidInput)
		}
		if endDate < alert.StartDate {
			return nil, fmt.Errorf("%w: end date before start date", ErrInvalidInput)
		}
	} else {
		endDate = alert.EndDate
	}

	if err := s.repo.UpdateAlertEndDate(ctx, id, endDate, endTime, s.Now()); err != nil {
		return nil, fmt.Errorf("updating alert %d: %w", id, err)
	}

	updated, err := s.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, Event{Kind: EventUpdated, Alert: *updated, Actor: email})
	return updated, nil
}

// MarkSolved archives the owner's alert with the solved flag set.
func (s *Service) MarkSolved(ctx context.Context, id int64, email string) (*models.Alert, error) {
	alert, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.SubmittedBy != email {
		return nil, ErrForbidden
	}

	if _, err := s.repo.MarkAlertSolved(ctx, id, s.Now()); err != nil {
		return nil, fmt.Errorf("marking alert %d solved: %w", id, err)
	}

	solved, err := s.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, Event{Kind: EventSolved, Alert: *solved, Actor: email})
	return solved, nil
}

// RunPublishSweep promotes alerts whose scheduled publish time has passed.
// Failures on one alert never abort the rest of the batch; the alert is
// re-selected by the same predicate on the next run.
func (s *Service) RunPublishSweep(ctx context.Context, now time.Time) int {
	due, err := s.repo.ListDueForPublish(ctx, now, s.cfg.PublishBatchSize)
	if err != nil {
		s.logger.Error("publish sweep query failed", "error", err)
		return 0
	}

	published := 0
	for _, alert := range due {
		ok, err := s.repo.PublishAlert(ctx, alert.ID, now)
		if err != nil {
			s.logger.Error("publish sweep transition failed", "alert_id", alert.ID, "error", err)
			continue
		}
		if !ok {
			// Lost the race to a concurrent run; nothing to do.
			continue
		}

		fresh, err := s.repo.GetAlert(ctx, alert.ID)
		if err != nil {
			s.logger.Error("publish sweep reload failed", "alert_id", alert.ID, "error", err)
			continue
		}
		published++
		s.emit(ctx, Event{Kind: EventPublished, Alert: *fresh})
	}

	if published > 0 {
		s.logger.Info("publish sweep finished", "published", published)
	}
	return published
}

// RunExpirySweep archives published alerts whose end date lies in the past.
func (s *Service) RunExpirySweep(ctx context.Context, now time.Time) int {
	today := now.Format(models.DateFormat)
	expired, err := s.repo.ListExpiredPublished(ctx, today, s.cfg.ExpiryBatchSize)
	if err != nil {
		s.logger.Error("expiry sweep query failed", "error", err)
		return 0
	}

	archived := 0
	for _, alert := range expired {
		ok, err := s.repo.ArchiveExpiredAlert(ctx, alert.ID, now)
		if err != nil {
			s.logger.Error("expiry sweep transition failed", "alert_id", alert.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}

		fresh, err := s.repo.GetAlert(ctx, alert.ID)
		if err != nil {
			s.logger.Error("expiry sweep reload failed", "alert_id", alert.ID, "error", err)
			continue
		}
		archived++
		s.emit(ctx, Event{Kind: EventExpired, Alert: *fresh})
	}

	if archived > 0 {
		s.logger.Info("expiry sweep finished", "archived", archived)
	}
	return archived
}

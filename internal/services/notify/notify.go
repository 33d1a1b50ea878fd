// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

// Package notify fans a freshly published alert out to matching
// subscribers in delayed, fixed-size batches.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tobalt/cityalerts/internal/config"
	"github.com/tobalt/cityalerts/internal/models"
	"github.com/tobalt/cityalerts/internal/repository"
	"github.com/tobalt/cityalerts/internal/scheduler"
	"github.com/tobalt/cityalerts/internal/services/alerts"
	"github.com/tobalt/cityalerts/internal/services/email"
)

// Dispatcher sends notification emails for published alerts. The whole
// pipeline is guarded by the notifications_sent_at stamp: only the call
// that wins the stamp schedules batches, so duplicate publish events are
// harmless.
type Dispatcher struct {
	repo   *repository.Repository
	mail   *email.Service
	sched  *scheduler.Scheduler
	cfg    config.NotifyConfig
	logger *slog.Logger

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func NewDispatcher(repo *repository.Repository, mail *email.Service, sched *scheduler.Scheduler, cfg config.NotifyConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		mail:   mail,
		sched:  sched,
		cfg:    cfg,
		logger: logger,
		Now:    time.Now,
	}
}

// HandleAlertEvent wires the dispatcher into the alert event stream.
func (d *Dispatcher) HandleAlertEvent(ctx context.Context, ev alerts.Event) {
	if ev.Kind != alerts.EventPublished {
		return
	}
	if err := d.Dispatch(ctx, ev.Alert.ID); err != nil {
		d.logger.Error("notification dispatch failed", "alert_id", ev.Alert.ID, "error", err)
	}
}

// Dispatch resolves recipients and schedules the send batches for one
// alert. The stamp is written before any batch runs: at most once per
// publish, at the cost of no automatic retry if scheduling itself fails
// afterwards (operators can Resend).
func (d *Dispatcher) Dispatch(ctx context.Context, alertID int64) error {
	alert, err := d.repo.GetAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("loading alert: %w", err)
	}
	if alert.Status != models.StatusPublished {
		return nil
	}

	recipients, err := d.resolveRecipients(ctx, alert)
	if err != nil {
		return fmt.Errorf("resolving recipients: %w", err)
	}

	won, err := d.repo.StampNotifications(ctx, alertID, d.Now(), len(recipients))
	if err != nil {
		return fmt.Errorf("stamping dispatch: %w", err)
	}
	if !won {
		// Already dispatched for this publish.
		return nil
	}
	if len(recipients) == 0 {
		return nil
	}

	delay := time.Duration(d.cfg.BatchDelaySeconds) * time.Second
	for index, batch := range chunk(recipients, d.cfg.BatchSize) {
		batch := batch
		name := fmt.Sprintf("notify alert %d batch %d", alertID, index)
		d.sched.After(name, time.Duration(index)*delay, func(ctx context.Context) {
			d.SendBatch(ctx, alertID, batch)
		})
	}

	d.logger.Info("notifications scheduled",
		"alert_id", alertID,
		"recipients", len(recipients),
		"batches", (len(recipients)+d.cfg.BatchSize-1)/d.cfg.BatchSize,
	)
	return nil
}

// Resend clears the dispatch stamp and runs the pipeline again. Operator
// recovery path for a stuck or failed dispatch.
func (d *Dispatcher) Resend(ctx context.Context, alertID int64) error {
	if err := d.repo.ClearNotificationStamp(ctx, alertID); err != nil {
		return fmt.Errorf("clearing dispatch stamp: %w", err)
	}
	return d.Dispatch(ctx, alertID)
}

// SendBatch delivers one batch, one message per recipient. Send failures
// and subscribers deleted since scheduling are logged and skipped; there
// is no per-message retry.
func (d *Dispatcher) SendBatch(ctx context.Context, alertID int64, emails []string) {
	alert, err := d.repo.GetAlert(ctx, alertID)
	if err != nil {
		d.logger.Error("notification batch: alert gone", "alert_id", alertID, "error", err)
		return
	}

	sent := 0
	for _, to := range emails {
		unsubToken, err := d.repo.GetUnsubscribeToken(ctx, to)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				d.logger.Error("notification batch: token lookup failed", "alert_id", alertID, "error", err)
			}
			// Unsubscribed between scheduling and sending.
			continue
		}
		if err := d.mail.SendAlertNotification(ctx, to, alert, unsubToken); err != nil {
			d.logger.Error("notification send failed", "alert_id", alertID, "to", to, "error", err)
			continue
		}
		sent++
	}

	d.logger.Info("notification batch sent", "alert_id", alertID, "sent", sent, "of", len(emails))
}

// resolveRecipients returns the verified subscribers whose filter matches
// the alert's categories.
func (d *Dispatcher) resolveRecipients(ctx context.Context, alert *models.Alert) ([]string, error) {
	subs, err := d.repo.ListVerifiedSubscribers(ctx)
	if err != nil {
		return nil, err
	}

	alertCats := make([]int64, 0, len(alert.Categories))
	for _, c := range alert.Categories {
		alertCats = append(alertCats, c.ID)
	}

	var recipients []string
	for _, sub := range subs {
		if matches(sub.CategoryIDs(), alertCats) {
			recipients = append(recipients, sub.Email)
		}
	}
	return recipients, nil
}

// matches applies the subscription filter. An empty subscriber filter
// means "all categories". An alert without categories notifies only
// those all-category subscribers: a subscriber who picked specific
// categories asked for exactly those and nothing else.
func matches(subscriberCats, alertCats []int64) bool {
	if len(subscriberCats) == 0 {
		return true
	}
	if len(alertCats) == 0 {
		return false
	}
	set := make(map[int64]struct{}, len(subscriberCats))
	for _, id := range subscriberCats {
		set[id] = struct{}{}
	}
	for _, id := range alertCats {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	var out [][]string
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

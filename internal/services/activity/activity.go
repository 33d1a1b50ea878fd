// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

// Package activity records an audit trail of alert lifecycle changes.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tobalt/cityalerts/internal/models"
	"github.com/tobalt/cityalerts/internal/repository"
	"github.com/tobalt/cityalerts/internal/services/alerts"
)

// Recorder writes one activity_log row per alert lifecycle event.
type Recorder struct {
	repo   *repository.Repository
	logger *slog.Logger

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func NewRecorder(repo *repository.Repository, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
		Now:    time.Now,
	}
}

// HandleAlertEvent wires the recorder into the alert event stream. The
// audit trail is best effort; a failed insert is logged and never fails
// the operation that triggered it.
func (r *Recorder) HandleAlertEvent(ctx context.Context, ev alerts.Event) {
	entry := &models.ActivityEntry{
		AlertID: ev.Alert.ID,
	}

	switch ev.Kind {
	case alerts.EventCreated:
		entry.Action = models.ActionCreated
		entry.ActorEmail = ev.Actor
		entry.ActorType = "employee"
		entry.Details = r.detailsJSON(map[string]any{
			"title":    ev.Alert.Title,
			"severity": ev.Alert.Severity,
			"status":   ev.Alert.Status,
		})
	case alerts.EventPublished:
		entry.Action = models.ActionPublished
		entry.ActorEmail = ev.Actor
		entry.ActorType = actorType(ev.Actor)
		entry.Details = r.detailsJSON(map[string]any{
			"title": ev.Alert.Title,
		})
	case alerts.EventExpired:
		entry.Action = models.ActionExpired
		entry.ActorType = "system"
		entry.Details = r.detailsJSON(map[string]any{
			"end_date": ev.Alert.EndDate,
		})
	case alerts.EventSolved:
		entry.Action = models.ActionSolved
		entry.ActorEmail = ev.Actor
		entry.ActorType = "employee"
		entry.Details = r.detailsJSON(map[string]any{
			"time_to_solve": r.timeToSolve(ctx, ev.Alert.ID),
		})
	case alerts.EventUpdated:
		entry.Action = models.ActionUpdated
		entry.ActorEmail = ev.Actor
		entry.ActorType = "employee"
		entry.Details = r.detailsJSON(map[string]any{
			"end_date": ev.Alert.EndDate,
			"end_time": ev.Alert.EndTime,
		})
	default:
		return
	}

	if err := r.repo.InsertActivity(ctx, entry, r.Now()); err != nil {
		r.logger.Error("activity log insert failed", "alert_id", ev.Alert.ID, "action", entry.Action, "error", err)
	}
}

// timeToSolve reports the duration between the creation entry and now,
// or "" when the creation entry is missing.
func (r *Recorder) timeToSolve(ctx context.Context, alertID int64) string {
	created, err := r.repo.GetCreationActivity(ctx, alertID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.Error("activity log lookup failed", "alert_id", alertID, "error", err)
		}
		return ""
	}
	return r.Now().Sub(created.CreatedAt).Round(time.Second).String()
}

func (r *Recorder) detailsJSON(details map[string]any) string {
	buf, err := json.Marshal(details)
	if err != nil {
		r.logger.Error("activity details marshal failed", "error", err)
		return "{}"
	}
	return string(buf)
}

func actorType(actor string) string {
	if actor == "" {
		return "system"
	}
	return "employee"
}

// TimelineEntry is one row of an alert's audit timeline with the JSON
// details decoded.
type TimelineEntry struct {
	Action     string         `json:"action"`
	ActorEmail string         `json:"actor_email,omitempty"`
	ActorType  string         `json:"actor_type"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Timeline returns the audit trail for one alert, oldest first.
func (r *Recorder) Timeline(ctx context.Context, alertID int64) ([]TimelineEntry, error) {
	entries, err := r.repo.ListActivityForAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("loading activity: %w", err)
	}
	out := make([]TimelineEntry, 0, len(entries))
	for _, e := range entries {
		details := map[string]any{}
		if e.Details != "" {
			if err := json.Unmarshal([]byte(e.Details), &details); err != nil {
				details = map[string]any{}
			}
		}
		out = append(out, TimelineEntry{
			Action:     e.Action,
			ActorEmail: e.ActorEmail,
			ActorType:  e.ActorType,
			Details:    details,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out, nil
}

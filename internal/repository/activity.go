// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/tobalt/cityalerts/internal/models"
)

// InsertActivity appends an entry to the activity log.
func (r *Repository) InsertActivity(ctx context.Context, entry *models.ActivityEntry, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_log (alert_id, action, actor_email, actor_type, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.AlertID, entry.Action, entry.ActorEmail, entry.ActorType, entry.Details, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	entry.CreatedAt = now
	return nil
}

// ListActivityForAlert returns the activity trail of one alert, oldest first.
func (r *Repository) ListActivityForAlert(ctx context.Context, alertID int64) ([]models.ActivityEntry, error) {
	var entries []models.ActivityEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT * FROM activity_log WHERE alert_id = ? ORDER BY id ASC`, alertID)
	return entries, err
}

// ListRecentActivity returns the newest log entries.
func (r *Repository) ListRecentActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	var entries []models.ActivityEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT * FROM activity_log ORDER BY id DESC LIMIT ?`, limit)
	return entries, err
}

// GetCreationActivity returns the "created" entry for an alert, if any.
func (r *Repository) GetCreationActivity(ctx context.Context, alertID int64) (*models.ActivityEntry, error) {
	var entry models.ActivityEntry
	err := r.db.GetContext(ctx, &entry,
		`SELECT * FROM activity_log WHERE alert_id = ? AND action = ? ORDER BY id ASC LIMIT 1`,
		alertID, models.ActionCreated)
	if err != nil {
		return nil, wrapError(err)
	}
	return &entry, nil
}

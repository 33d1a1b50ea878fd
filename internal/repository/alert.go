// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/vinovest/sqlx"

	"github.com/tobalt/cityalerts/internal/models"
)

// CreateAlert inserts a new alert and sets its ID.
func (r *Repository) CreateAlert(ctx context.Context, alert *models.Alert, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (title, body, start_date, start_time, end_date, end_time, severity,
		   location, pinned, status, submitted_by, scheduled_publish_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.Title, alert.Body, alert.StartDate, alert.StartTime, alert.EndDate, alert.EndTime,
		alert.Severity, alert.Location, alert.Pinned, alert.Status, alert.SubmittedBy,
		alert.ScheduledPublishAt, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	alert.ID = id
	alert.CreatedAt = now
	alert.UpdatedAt = now
	return nil
}

// GetAlert retrieves an alert with its categories.
func (r *Repository) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	var alert models.Alert
	if err := r.db.GetContext(ctx, &alert, `SELECT * FROM alerts WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	if err := r.attachCategories(ctx, []*models.Alert{&alert}); err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListVisibleAlerts returns published alerts visible within [from, to]:
// started on or before to, and either running until at least from, or
// without an end date and starting exactly on from. Ordering is pinned
// first, then ascending start date, with the ID as a stable tiebreak.
func (r *Repository) ListVisibleAlerts(ctx context.Context, from, to string, categoryID int64, limit int) ([]models.Alert, error) {
	query := `SELECT * FROM alerts
		WHERE status = ?
		  AND start_date <= ?
		  AND ((end_date != '' AND end_date >= ?) OR (end_date = '' AND start_date = ?))`
	args := []any{models.StatusPublished, to, from, from}

	if categoryID > 0 {
		query += ` AND EXISTS (SELECT 1 FROM alert_categories ac WHERE ac.alert_id = alerts.id AND ac.category_id = ?)`
		args = append(args, categoryID)
	}

	query += ` ORDER BY pinned DESC, start_date ASC, id ASC LIMIT ?`
	args = append(args, limit)

	var alerts []models.Alert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, err
	}
	return alerts, r.attachCategoriesSlice(ctx, alerts)
}

// ListAlertsBySubmitter returns the alerts a submitter owns, newest first.
func (r *Repository) ListAlertsBySubmitter(ctx context.Context, email string, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.SelectContext(ctx, &alerts,
		`SELECT * FROM alerts WHERE submitted_by = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		email, limit)
	if err != nil {
		return nil, err
	}
	return alerts, r.attachCategoriesSlice(ctx, alerts)
}

// ListDueForPublish selects alerts whose scheduled publish time has passed.
func (r *Repository) ListDueForPublish(ctx context.Context, now time.Time, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.SelectContext(ctx, &alerts,
		`SELECT * FROM alerts
		 WHERE status IN (?, ?) AND scheduled_publish_at IS NOT NULL AND scheduled_publish_at <= ?
		 ORDER BY scheduled_publish_at ASC LIMIT ?`,
		models.StatusScheduled, models.StatusDraft, now, limit)
	return alerts, err
}

// PublishAlert transitions an alert to published and clears its schedule.
// The status predicate makes a rerun on the same alert a no-op; it reports
// whether this call performed the transition.
func (r *Repository) PublishAlert(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, scheduled_publish_at = NULL, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		models.StatusPublished, now, id, models.StatusScheduled, models.StatusDraft)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListExpiredPublished selects published alerts whose end date has passed.
func (r *Repository) ListExpiredPublished(ctx context.Context, today string, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.SelectContext(ctx, &alerts,
		`SELECT * FROM alerts WHERE status = ? AND end_date != '' AND end_date < ?
		 ORDER BY end_date ASC LIMIT ?`,
		models.StatusPublished, today, limit)
	return alerts, err
}

// ArchiveExpiredAlert moves a published alert to archived and stamps the
// auto-expiry marker. Reports whether the transition happened.
func (r *Repository) ArchiveExpiredAlert(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, auto_expired_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		models.StatusArchived, now, now, id, models.StatusPublished)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkAlertSolved archives an alert with the solved flag set. Archived
// alerts stay archived; the call reports whether a transition happened.
func (r *Repository) MarkAlertSolved(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, solved = 1, solved_at = ?, updated_at = ?
		 WHERE id = ? AND status != ?`,
		models.StatusArchived, now, now, id, models.StatusArchived)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateAlertEndDate sets the end date/time of an alert.
func (r *Repository) UpdateAlertEndDate(ctx context.Context, id int64, endDate, endTime string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET end_date = ?, end_time = ?, updated_at = ? WHERE id = ?`,
		endDate, endTime, now, id)
	return err
}

// StampNotifications records that notification dispatch ran for an alert.
// The IS NULL guard limits the stamp to once per publish; it reports
// whether this call won the stamp.
func (r *Repository) StampNotifications(ctx context.Context, id int64, now time.Time, count int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET notifications_sent_at = ?, notifications_count = ?
		 WHERE id = ? AND notifications_sent_at IS NULL`,
		now, count, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearNotificationStamp resets the dispatch marker so notifications can be
// re-sent by an operator.
func (r *Repository) ClearNotificationStamp(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET notifications_sent_at = NULL, notifications_count = 0 WHERE id = ?`, id)
	return err
}

// SetAlertCategories replaces the category assignment of an alert.
func (r *Repository) SetAlertCategories(ctx context.Context, alertID int64, categoryIDs []int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_categories WHERE alert_id = ?`, alertID); err != nil {
		return err
	}
	for _, cid := range categoryIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO alert_categories (alert_id, category_id) VALUES (?, ?)`,
			alertID, cid)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetAlertCategoryIDs returns the category IDs assigned to an alert.
func (r *Repository) GetAlertCategoryIDs(ctx context.Context, alertID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT category_id FROM alert_categories WHERE alert_id = ? ORDER BY category_id`, alertID)
	return ids, err
}

func (r *Repository) attachCategoriesSlice(ctx context.Context, alerts []models.Alert) error {
	ptrs := make([]*models.Alert, len(alerts))
	for i := range alerts {
		ptrs[i] = &alerts[i]
	}
	return r.attachCategories(ctx, ptrs)
}

// attachCategories loads categories for a set of alerts in one query.
func (r *Repository) attachCategories(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(alerts))
	byID := make(map[int64]*models.Alert, len(alerts))
	for _, a := range alerts {
		a.Categories = []models.Category{}
		ids = append(ids, a.ID)
		byID[a.ID] = a
	}

	query, args, err := sqlx.In(
		`SELECT ac.alert_id, c.id, c.name, c.slug
		 FROM alert_categories ac JOIN categories c ON c.id = ac.category_id
		 WHERE ac.alert_id IN (?) ORDER BY c.name`, ids)
	if err != nil {
		return err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var alertID int64
		var cat models.Category
		if err := rows.Scan(&alertID, &cat.ID, &cat.Name, &cat.Slug); err != nil {
			return err
		}
		if a, ok := byID[alertID]; ok {
			a.Categories = append(a.Categories, cat)
		}
	}
	return rows.Err()
}

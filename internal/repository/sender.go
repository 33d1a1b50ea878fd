// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/tobalt/cityalerts/internal/models"
)

// IsApprovedSender reports whether email is in the approved-sender registry.
func (r *Repository) IsApprovedSender(ctx context.Context, email string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM approved_senders WHERE email = ?`, email)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddApprovedSender registers an email address. Re-adding an existing
// address is a no-op.
func (r *Repository) AddApprovedSender(ctx context.Context, email, role, addedBy string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO approved_senders (email, role, added_by, added_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (email) DO NOTHING`,
		email, role, addedBy, now)
	return err
}

// ListApprovedSenders returns all approved senders ordered by address.
func (r *Repository) ListApprovedSenders(ctx context.Context) ([]models.ApprovedSender, error) {
	var senders []models.ApprovedSender
	err := r.db.SelectContext(ctx, &senders, `SELECT * FROM approved_senders ORDER BY email`)
	return senders, err
}

// DeleteApprovedSender removes an approved sender by email.
func (r *Repository) DeleteApprovedSender(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM approved_senders WHERE email = ?`, email)
	return err
}

// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/tobalt/cityalerts/internal/models"
)

// CreateSubscriber inserts a new subscription record and sets its ID.
func (r *Repository) CreateSubscriber(ctx context.Context, sub *models.Subscriber, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO subscribers (email, categories, verified, verify_token, unsubscribe_token, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.Email, sub.Categories, sub.Verified, sub.VerifyToken, sub.UnsubscribeToken, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sub.ID = id
	sub.CreatedAt = now
	return nil
}

// GetSubscriberByEmail retrieves a subscriber by address.
func (r *Repository) GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	var sub models.Subscriber
	if err := r.db.GetContext(ctx, &sub, `SELECT * FROM subscribers WHERE email = ?`, email); err != nil {
		return nil, wrapError(err)
	}
	return &sub, nil
}

// GetSubscriberByVerifyToken retrieves a subscriber by its verify token.
func (r *Repository) GetSubscriberByVerifyToken(ctx context.Context, token string) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := r.db.GetContext(ctx, &sub, `SELECT * FROM subscribers WHERE verify_token = ?`, token)
	if err != nil {
		return nil, wrapError(err)
	}
	return &sub, nil
}

// UpdateSubscriberCategories overwrites the category filter. When
// verifyToken is non-nil the record additionally reverts to unverified
// with the fresh token (re-subscribe of an unverified address).
func (r *Repository) UpdateSubscriberCategories(ctx context.Context, id int64, categories string, verifyToken *string) error {
	if verifyToken != nil {
		_, err := r.db.ExecContext(ctx,
			`UPDATE subscribers SET categories = ?, verify_token = ?, verified = 0 WHERE id = ?`,
			categories, *verifyToken, id)
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE subscribers SET categories = ? WHERE id = ?`, categories, id)
	return err
}

// MarkSubscriberVerified flips a subscriber to verified and clears the
// verify token.
func (r *Repository) MarkSubscriberVerified(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET verified = 1, verify_token = NULL, verified_at = ? WHERE id = ?`,
		now, id)
	return err
}

// DeleteSubscriberByUnsubscribeToken removes the matching record entirely
// and reports whether one existed.
func (r *Repository) DeleteSubscriberByUnsubscribeToken(ctx context.Context, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE unsubscribe_token = ?`, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListVerifiedSubscribers returns all verified subscribers.
func (r *Repository) ListVerifiedSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	var subs []models.Subscriber
	err := r.db.SelectContext(ctx, &subs, `SELECT * FROM subscribers WHERE verified = 1 ORDER BY id`)
	return subs, err
}

// GetUnsubscribeToken looks up the unsubscribe token for an address.
func (r *Repository) GetUnsubscribeToken(ctx context.Context, email string) (string, error) {
	var token string
	err := r.db.GetContext(ctx, &token, `SELECT unsubscribe_token FROM subscribers WHERE email = ?`, email)
	if err != nil {
		return "", wrapError(err)
	}
	return token, nil
}

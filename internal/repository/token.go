// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/tobalt/cityalerts/internal/models"
)

// CreateMagicToken inserts a token for email unless the number of tokens
// created for that email within window already reaches limit. The count and
// the insert run in one immediate transaction so two concurrent requests
// cannot both pass the rate check.
func (r *Repository) CreateMagicToken(ctx context.Context, email, tokenHash string, expiresAt time.Time, limit int, window time.Duration, now time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin token tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	err = tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM magic_tokens WHERE email = ? AND created_at > ?`,
		email, now.Add(-window))
	if err != nil {
		return false, err
	}
	if count >= limit {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO magic_tokens (email, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		email, tokenHash, expiresAt, now)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// GetMagicToken retrieves a token by its hash.
func (r *Repository) GetMagicToken(ctx context.Context, tokenHash string) (*models.MagicToken, error) {
	var token models.MagicToken
	err := r.db.GetContext(ctx, &token, `SELECT * FROM magic_tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// ConsumeMagicToken stamps used_at on a token. The used_at guard makes the
// call idempotent: a second consume changes nothing.
func (r *Repository) ConsumeMagicToken(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE magic_tokens SET used_at = ? WHERE token_hash = ? AND used_at IS NULL`,
		now, tokenHash)
	return err
}

// DeleteExpiredMagicTokens removes tokens whose expiry is before cutoff.
func (r *Repository) DeleteExpiredMagicTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM magic_tokens WHERE expires_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package models

import "time"

// MagicToken is a one-time submission token delivered by email.
// Only the SHA-256 hash of the secret is stored.
type MagicToken struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64      `db:"id" json:"id"`
	Email     string     `db:"email" json:"email"`
	TokenHash string     `db:"token_hash" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// ApprovedSender is an email address pre-authorized to request magic links.
type ApprovedSender struct { //nolint:govet // fieldalignment: readability over optimization
	ID      int64     `db:"id" json:"id"`
	Email   string    `db:"email" json:"email"`
	Role    string    `db:"role" json:"role"`
	AddedBy string    `db:"added_by" json:"added_by"`
	AddedAt time.Time `db:"added_at" json:"added_at"`
}

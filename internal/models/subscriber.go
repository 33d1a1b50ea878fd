// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package models

import (
	"encoding/json"
	"time"
)

// Subscriber is a resident subscribed to alert notifications.
// Categories holds a JSON-encoded list of category IDs; an empty list
// means "all categories".
type Subscriber struct { //nolint:govet // fieldalignment: readability over optimization
	ID               int64      `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	Categories       string     `db:"categories" json:"-"`
	Verified         bool       `db:"verified" json:"verified"`
	VerifyToken      *string    `db:"verify_token" json:"-"`
	UnsubscribeToken string     `db:"unsubscribe_token" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	VerifiedAt       *time.Time `db:"verified_at" json:"verified_at,omitempty"`
}

// CategoryIDs decodes the stored category filter. A decode failure is
// treated as an empty filter.
func (s *Subscriber) CategoryIDs() []int64 {
	var ids []int64
	if err := json.Unmarshal([]byte(s.Categories), &ids); err != nil {
		return nil
	}
	return ids
}

// EncodeCategoryIDs encodes a category filter for storage.
func EncodeCategoryIDs(ids []int64) string {
	if ids == nil {
		ids = []int64{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

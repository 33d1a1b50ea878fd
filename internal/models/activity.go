// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package models

import "time"

// Activity-log actions.
const (
	ActionCreated   = "created"
	ActionPublished = "published"
	ActionExpired   = "expired"
	ActionSolved    = "solved"
	ActionUpdated   = "updated"
)

// ActivityEntry is one row of the alert activity trail.
type ActivityEntry struct { //nolint:govet // fieldalignment: readability over optimization
	ID         int64     `db:"id" json:"id"`
	AlertID    int64     `db:"alert_id" json:"alert_id"`
	Action     string    `db:"action" json:"action"`
	ActorEmail string    `db:"actor_email" json:"actor_email,omitempty"`
	ActorType  string    `db:"actor_type" json:"actor_type"`
	Details    string    `db:"details" json:"details"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

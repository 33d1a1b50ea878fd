// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package models

import "time"

// Alert statuses. The automated sweeps only ever move an alert forward:
// scheduled/draft -> published -> archived.
const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusScheduled = "scheduled"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Alert severities.
const (
	SeverityNone     = "none"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// DateFormat is the layout of all calendar dates (start_date, end_date).
const DateFormat = "2006-01-02"

// Alert is a single incident or maintenance notice.
type Alert struct { //nolint:govet // fieldalignment: readability over optimization
	ID                 int64      `db:"id" json:"id"`
	Title              string     `db:"title" json:"title"`
	Body               string     `db:"body" json:"description"`
	StartDate          string     `db:"start_date" json:"date"`
	StartTime          string     `db:"start_time" json:"time,omitempty"`
	EndDate            string     `db:"end_date" json:"end_date,omitempty"`
	EndTime            string     `db:"end_time" json:"end_time,omitempty"`
	Severity           string     `db:"severity" json:"severity"`
	Location           string     `db:"location" json:"location,omitempty"`
	Pinned             bool       `db:"pinned" json:"pinned"`
	Status             string     `db:"status" json:"status"`
	SubmittedBy        string     `db:"submitted_by" json:"-"`
	ScheduledPublishAt *time.Time `db:"scheduled_publish_at" json:"scheduled_publish_at,omitempty"`
	Solved             bool       `db:"solved" json:"solved"`
	SolvedAt           *time.Time `db:"solved_at" json:"solved_at,omitempty"`
	AutoExpiredAt      *time.Time `db:"auto_expired_at" json:"-"`
	NotificationsSent  *time.Time `db:"notifications_sent_at" json:"-"`
	NotificationsCount int64      `db:"notifications_count" json:"-"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	// Categories is populated by the repository, not a column.
	Categories []Category `db:"-" json:"categories"`
}

// ValidSeverity reports whether s is one of the known severities.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidDate reports whether s is a calendar date in DateFormat.
func ValidDate(s string) bool {
	_, err := time.Parse(DateFormat, s)
	return err == nil
}

// Category is an alert category (roadworks, water supply, safety, ...).
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Slug string `db:"slug" json:"slug"`
}

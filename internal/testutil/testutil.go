// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tobalt/cityalerts/internal/database"
	"github.com/tobalt/cityalerts/internal/models"
	"github.com/tobalt/cityalerts/internal/repository"
	"github.com/vinovest/sqlx"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestCategory creates a category in the database.
func NewTestCategory(t *testing.T, repo *repository.Repository, name, slug string) *models.Category {
	t.Helper()
	cat := &models.Category{Name: name, Slug: slug}
	require.NoError(t, repo.CreateCategory(context.Background(), cat))
	return cat
}

// NewTestSender approves an email address for submissions.
func NewTestSender(t *testing.T, repo *repository.Repository, email string) {
	t.Helper()
	require.NoError(t, repo.AddApprovedSender(context.Background(), email, "employee", "test", time.Now()))
}

// NewTestAlert creates a published alert starting today with no end date.
func NewTestAlert(t *testing.T, repo *repository.Repository, title, submittedBy string) *models.Alert {
	t.Helper()
	now := time.Now()
	alert := &models.Alert{
		Title:       title,
		StartDate:   now.Format(models.DateFormat),
		Severity:    models.SeverityNone,
		Status:      models.StatusPublished,
		SubmittedBy: submittedBy,
	}
	require.NoError(t, repo.CreateAlert(context.Background(), alert, now))
	return alert
}

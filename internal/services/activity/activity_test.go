// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package activity_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tobalt/cityalerts/internal/models"
	"github.com/tobalt/cityalerts/internal/repository"
	"github.com/tobalt/cityalerts/internal/services/activity"
	"github.com/tobalt/cityalerts/internal/services/alerts"
	"github.com/tobalt/cityalerts/internal/testutil"
)

func newRecorder(t *testing.T) (*activity.Recorder, *repository.Repository) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	return activity.NewRecorder(repo, slog.Default()), repo
}

func TestHandleAlertEvent(t *testing.T) {
	rec, repo := newRecorder(t)
	ctx := context.Background()

	alert := testutil.NewTestAlert(t, repo, "Water outage", "worker@city.example")

	rec.HandleAlertEvent(ctx, alerts.Event{Kind: alerts.EventCreated, Alert: *alert, Actor: "worker@city.example"})
	rec.HandleAlertEvent(ctx, alerts.Event{Kind: alerts.EventPublished, Alert: *alert, Actor: "worker@city.example"})
	rec.HandleAlertEvent(ctx, alerts.Event{Kind: alerts.EventExpired, Alert: *alert})

	entries, err := repo.ListActivityForAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, models.ActionCreated, entries[0].Action)
	assert.Equal(t, "worker@city.example", entries[0].ActorEmail)
	assert.Equal(t, "employee", entries[0].ActorType)

	assert.Equal(t, models.ActionPublished, entries[1].Action)

	assert.Equal(t, models.ActionExpired, entries[2].Action)
	assert.Empty(t, entries[2].ActorEmail)
	assert.Equal(t, "system", entries[2].ActorType)
}

func TestHandleAlertEvent_SweepPublishIsSystem(t *testing.T) {
	rec, repo := newRecorder(t)
	ctx := context.Background()

	alert := testutil.NewTestAlert(t, repo, "Scheduled notice", "worker@city.example")
	rec.HandleAlertEvent(ctx, alerts.Event{Kind: alerts.EventPublished, Alert: *alert})

	entries, err := repo.ListActivityForAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "system", entries[0].ActorType)
}

func TestSolvedRecordsTimeToSolve(t *testing.T) {
	rec, repo := newRecorder(t)
	ctx := context.Background()

	alert := testutil.NewTestAlert(t, repo, "Leak", "worker@city.example")

	created := time.Now().Add(-90 * time.Minute)
	rec.Now = func() time.Time { return created }
	rec.HandleAlertEvent(ctx, alerts.Event{Kind: alerts.EventCreated, Alert: *alert, Actor: "worker@city.example"})

	rec.Now = time.Now
	rec.HandleAlertEvent(ctx, alerts.Event{Kind: alerts.EventSolved, Alert: *alert, Actor: "worker@city.example"})

	timeline, err := rec.Timeline(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, models.ActionSolved, timeline[1].Action)
	assert.Contains(t, timeline[1].Details["time_to_solve"], "h")
}

func TestSolvedWithoutCreationEntry(t *testing.T) {
	rec, repo := newRecorder(t)
	ctx := context.Background()

	alert := testutil.NewTestAlert(t, repo, "Leak", "worker@city.example")
	rec.HandleAlertEvent(ctx, alerts.Event{Kind: alerts.EventSolved, Alert: *alert, Actor: "worker@city.example"})

	timeline, err := rec.Timeline(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, "", timeline[0].Details["time_to_solve"])
}

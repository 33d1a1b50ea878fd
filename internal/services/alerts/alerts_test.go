// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package alerts_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tobalt/cityalerts/internal/config"
	"github.com/tobalt/cityalerts/internal/models"
	"github.com/tobalt/cityalerts/internal/repository"
	"github.com/tobalt/cityalerts/internal/services/alerts"
	"github.com/tobalt/cityalerts/internal/testutil"
)

func newService(t *testing.T, requireApproval bool) (*alerts.Service, *repository.Repository) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	svc := alerts.NewService(repo, config.AlertsConfig{
		DateRangeDays:    7,
		PublishBatchSize: 50,
		ExpiryBatchSize:  100,
	}, requireApproval, slog.Default())
	return svc, repo
}

func submit(t *testing.T, svc *alerts.Service, in alerts.SubmitInput) *models.Alert {
	t.Helper()
	alert, err := svc.Submit(context.Background(), in, "worker@city.example")
	require.NoError(t, err)
	return alert
}

func TestSubmit_PublishesImmediately(t *testing.T) {
	svc, _ := newService(t, false)

	alert := submit(t, svc, alerts.SubmitInput{Title: "Water outage", StartDate: "2024-06-01"})
	assert.Equal(t, models.StatusPublished, alert.Status)
	assert.Equal(t, models.SeverityNone, alert.Severity)
}

func TestSubmit_PendingWithApprovalPolicy(t *testing.T) {
	svc, _ := newService(t, true)

	alert := submit(t, svc, alerts.SubmitInput{Title: "Water outage", StartDate: "2024-06-01"})
	assert.Equal(t, models.StatusPending, alert.Status)
}

func TestSubmit_FutureScheduleWins(t *testing.T) {
	svc, _ := newService(t, false)

	at := time.Now().Add(2 * time.Hour)
	alert := submit(t, svc, alerts.SubmitInput{
		Title:              "Road closure",
		StartDate:          "2024-06-01",
		ScheduledPublishAt: &at,
	})
	assert.Equal(t, models.StatusScheduled, alert.Status)
	require.NotNil(t, alert.ScheduledPublishAt)
}

func TestSubmit_PastScheduleIsIgnored(t *testing.T) {
	svc, _ := newService(t, false)

	at := time.Now().Add(-time.Hour)
	alert := submit(t, svc, alerts.SubmitInput{
		Title:              "Road closure",
		StartDate:          "2024-06-01",
		ScheduledPublishAt: &at,
	})
	assert.Equal(t, models.StatusPublished, alert.Status)
}

func TestSubmit_Validation(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()

	cases := []struct {
		name string
		in   alerts.SubmitInput
	}{
		{"missing title", alerts.SubmitInput{StartDate: "2024-06-01"}},
		{"bad start date", alerts.SubmitInput{Title: "x", StartDate: "01.06.2024"}},
		{"bad end date", alerts.SubmitInput{Title: "x", StartDate: "2024-06-01", EndDate: "soon"}},
		{"end before start", alerts.SubmitInput{Title: "x", StartDate: "2024-06-02", EndDate: "2024-06-01"}},
		{"unknown severity", alerts.SubmitInput{Title: "x", StartDate: "2024-06-01", Severity: "extreme"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tc.in, "worker@city.example")
			assert.ErrorIs(t, err, alerts.ErrInvalidInput)
		})
	}
}

func TestSubmit_EmitsEvents(t *testing.T) {
	svc, _ := newService(t, false)

	var kinds []alerts.EventKind
	svc.Listen(func(_ context.Context, ev alerts.Event) {
		kinds = append(kinds, ev.Kind)
	})

	submit(t, svc, alerts.SubmitInput{Title: "Water outage", StartDate: "2024-06-01"})
	assert.Equal(t, []alerts.EventKind{alerts.EventCreated, alerts.EventPublished}, kinds)
}

func TestQueryVisible(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()

	// Runs 2024-06-01 through 2024-06-03.
	ranged := submit(t, svc, alerts.SubmitInput{Title: "Roadworks", StartDate: "2024-06-01", EndDate: "2024-06-03"})
	// Open-ended, starts 2024-06-02.
	open := submit(t, svc, alerts.SubmitInput{Title: "Power cut", StartDate: "2024-06-02"})

	cases := []struct {
		name     string
		from, to string
		want     []int64
	}{
		{"day within range", "2024-06-02", "2024-06-02", []int64{ranged.ID, open.ID}},
		{"day after end", "2024-06-04", "2024-06-04", nil},
		{"last day of range", "2024-06-03", "2024-06-03", []int64{ranged.ID}},
		{"window covering start", "2024-05-30", "2024-06-01", []int64{ranged.ID}},
		{"open-ended needs exact from", "2024-06-03", "2024-06-05", []int64{ranged.ID}},
		{"open-ended on its start day", "2024-06-02", "2024-06-05", []int64{ranged.ID, open.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.QueryVisible(ctx, tc.from, tc.to, 0)
			require.NoError(t, err)
			ids := make([]int64, 0, len(got))
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			assert.ElementsMatch(t, tc.want, ids)
		})
	}
}

func TestQueryVisible_PinnedFirst(t *testing.T) {
	svc, _ := newService(t, false)

	submit(t, svc, alerts.SubmitInput{Title: "Early", StartDate: "2024-06-01", EndDate: "2024-06-05"})
	pinned := submit(t, svc, alerts.SubmitInput{Title: "Pinned late", StartDate: "2024-06-03", EndDate: "2024-06-05", Pinned: true})

	got, err := svc.QueryVisible(context.Background(), "2024-06-03", "2024-06-04", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, pinned.ID, got[0].ID)
}

func TestQueryVisible_CategoryFilter(t *testing.T) {
	svc, repo := newService(t, false)
	ctx := context.Background()

	roads := testutil.NewTestCategory(t, repo, "Roadworks", "roadworks")
	water := testutil.NewTestCategory(t, repo, "Water", "water")

	tagged := submit(t, svc, alerts.SubmitInput{
		Title: "Dig", StartDate: "2024-06-01", EndDate: "2024-06-02", CategoryIDs: []int64{roads.ID},
	})
	submit(t, svc, alerts.SubmitInput{Title: "Other", StartDate: "2024-06-01", EndDate: "2024-06-02"})

	got, err := svc.QueryVisible(ctx, "2024-06-01", "2024-06-02", roads.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tagged.ID, got[0].ID)
	require.Len(t, got[0].Categories, 1)
	assert.Equal(t, "roadworks", got[0].Categories[0].Slug)

	got, err = svc.QueryVisible(ctx, "2024-06-01", "2024-06-02", water.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryVisible_ExcludesNonPublished(t *testing.T) {
	svc, repo := newService(t, true)
	ctx := context.Background()

	submit(t, svc, alerts.SubmitInput{Title: "Pending", StartDate: "2024-06-01", EndDate: "2024-06-02"})

	got, err := svc.QueryVisible(ctx, "2024-06-01", "2024-06-02", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Sanity: the alert exists.
	mine, err := repo.ListAlertsBySubmitter(ctx, "worker@city.example", 10)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestMarkSolved(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()

	alert := submit(t, svc, alerts.SubmitInput{Title: "Leak", StartDate: "2024-06-01"})

	solved, err := svc.MarkSolved(ctx, alert.ID, "worker@city.example")
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, solved.Status)
	assert.True(t, solved.Solved)
	assert.NotNil(t, solved.SolvedAt)
}

func TestMarkSolved_Ownership(t *testing.T) {
	svc, _ := newService(t, false)

	alert := submit(t, svc, alerts.SubmitInput{Title: "Leak", StartDate: "2024-06-01"})

	_, err := svc.MarkSolved(context.Background(), alert.ID, "other@city.example")
	assert.ErrorIs(t, err, alerts.ErrForbidden)

	_, err = svc.MarkSolved(context.Background(), alert.ID+999, "worker@city.example")
	assert.ErrorIs(t, err, alerts.ErrNotFound)
}

func TestUpdateEndDate(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()

	alert := submit(t, svc, alerts.SubmitInput{Title: "Leak", StartDate: "2024-06-01"})

	updated, err := svc.UpdateEndDate(ctx, alert.ID, "worker@city.example", "2024-06-05", "18:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-05", updated.EndDate)
	assert.Equal(t, "18:00", updated.EndTime)

	_, err = svc.UpdateEndDate(ctx, alert.ID, "worker@city.example", "2024-05-01", "")
	assert.ErrorIs(t, err, alerts.ErrInvalidInput)

	_, err = svc.UpdateEndDate(ctx, alert.ID, "other@city.example", "2024-06-06", "")
	assert.ErrorIs(t, err, alerts.ErrForbidden)
}

func TestRunPublishSweep(t *testing.T) {
	svc, repo := newService(t, false)
	ctx := context.Background()

	at := time.Now().Add(time.Hour)
	alert := submit(t, svc, alerts.SubmitInput{
		Title:              "Scheduled",
		StartDate:          "2024-06-01",
		ScheduledPublishAt: &at,
	})

	var published []int64
	svc.Listen(func(_ context.Context, ev alerts.Event) {
		if ev.Kind == alerts.EventPublished {
			published = append(published, ev.Alert.ID)
		}
	})

	// Before the scheduled time nothing happens.
	assert.Zero(t, svc.RunPublishSweep(ctx, at.Add(-time.Minute)))

	assert.Equal(t, 1, svc.RunPublishSweep(ctx, at.Add(time.Minute)))
	assert.Equal(t, []int64{alert.ID}, published)

	fresh, err := repo.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, fresh.Status)
	assert.Nil(t, fresh.ScheduledPublishAt)

	// A second run is a no-op.
	assert.Zero(t, svc.RunPublishSweep(ctx, at.Add(2*time.Minute)))
	assert.Len(t, published, 1)
}

func TestRunExpirySweep(t *testing.T) {
	svc, repo := newService(t, false)
	ctx := context.Background()

	ended := submit(t, svc, alerts.SubmitInput{Title: "Over", StartDate: "2024-06-01", EndDate: "2024-06-02"})
	open := submit(t, svc, alerts.SubmitInput{Title: "Open-ended", StartDate: "2024-06-01"})

	now, err := time.Parse(models.DateFormat, "2024-06-03")
	require.NoError(t, err)

	var expired []int64
	svc.Listen(func(_ context.Context, ev alerts.Event) {
		if ev.Kind == alerts.EventExpired {
			expired = append(expired, ev.Alert.ID)
		}
	})

	assert.Equal(t, 1, svc.RunExpirySweep(ctx, now))
	assert.Equal(t, []int64{ended.ID}, expired)

	archived, err := repo.GetAlert(ctx, ended.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, archived.Status)
	assert.NotNil(t, archived.AutoExpiredAt)
	assert.False(t, archived.Solved)

	// Open-ended alerts never expire.
	stillOpen, err := repo.GetAlert(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, stillOpen.Status)

	// A second run is a no-op.
	assert.Zero(t, svc.RunExpirySweep(ctx, now))
}

func TestRunExpirySweep_EndDateInclusive(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()

	submit(t, svc, alerts.SubmitInput{Title: "Ends today", StartDate: "2024-06-01", EndDate: "2024-06-02"})

	onEndDate, err := time.Parse(models.DateFormat, "2024-06-02")
	require.NoError(t, err)
	assert.Zero(t, svc.RunExpirySweep(ctx, onEndDate))

	dayAfter := onEndDate.AddDate(0, 0, 1)
	assert.Equal(t, 1, svc.RunExpirySweep(ctx, dayAfter))
}

// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package notify_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tobalt/cityalerts/internal/config"
	"github.com/tobalt/cityalerts/internal/i18n"
	"github.com/tobalt/cityalerts/internal/models"
	"github.com/tobalt/cityalerts/internal/repository"
	"github.com/tobalt/cityalerts/internal/scheduler"
	"github.com/tobalt/cityalerts/internal/services/email"
	"github.com/tobalt/cityalerts/internal/services/notify"
	"github.com/tobalt/cityalerts/internal/testutil"
)

func newDispatcher(t *testing.T, batchSize int) (*notify.Dispatcher, *repository.Repository, *email.MemoryMailer) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	require.NoError(t, i18n.Init())

	mailer := &email.MemoryMailer{}
	mailSvc, err := email.NewService(mailer, "http://localhost:8080")
	require.NoError(t, err)

	sched := scheduler.New(slog.Default())
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	d := notify.NewDispatcher(repo, mailSvc, sched, config.NotifyConfig{
		BatchSize:         batchSize,
		BatchDelaySeconds: 0,
	}, slog.Default())
	return d, repo, mailer
}

func addSubscriber(t *testing.T, repo *repository.Repository, addr string, verified bool, categories []int64) {
	t.Helper()
	ctx := context.Background()
	token := hex.EncodeToString([]byte(addr)) + strings.Repeat("0", 64)
	sub := &models.Subscriber{
		Email:            addr,
		Categories:       models.EncodeCategoryIDs(categories),
		Verified:         verified,
		UnsubscribeToken: token[:64],
	}
	require.NoError(t, repo.CreateSubscriber(ctx, sub, time.Now()))
	if verified {
		require.NoError(t, repo.MarkSubscriberVerified(ctx, sub.ID, time.Now()))
	}
}

func waitForMessages(t *testing.T, mailer *email.MemoryMailer, want int) []email.Message {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(mailer.Messages()) == want
	}, 2*time.Second, 10*time.Millisecond)
	return mailer.Messages()
}

func TestDispatch(t *testing.T) {
	d, repo, mailer := newDispatcher(t, 50)
	ctx := context.Background()

	addSubscriber(t, repo, "all@example.com", true, nil)
	addSubscriber(t, repo, "unverified@example.com", false, nil)

	alert := testutil.NewTestAlert(t, repo, "Water outage", "worker@city.example")
	require.NoError(t, d.Dispatch(ctx, alert.ID))

	msgs := waitForMessages(t, mailer, 1)
	assert.Equal(t, "all@example.com", msgs[0].To)
	assert.Contains(t, msgs[0].Subject, "Water outage")
	assert.Contains(t, msgs[0].Body, "/api/v1/unsubscribe/")

	fresh, err := repo.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.NotNil(t, fresh.NotificationsSent)
	assert.Equal(t, int64(1), fresh.NotificationsCount)
}

func TestDispatch_Idempotent(t *testing.T) {
	d, repo, mailer := newDispatcher(t, 50)
	ctx := context.Background()

	addSubscriber(t, repo, "all@example.com", true, nil)
	alert := testutil.NewTestAlert(t, repo, "Water outage", "worker@city.example")

	require.NoError(t, d.Dispatch(ctx, alert.ID))
	require.NoError(t, d.Dispatch(ctx, alert.ID))
	require.NoError(t, d.Dispatch(ctx, alert.ID))

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, waitForMessages(t, mailer, 1), 1)
}

func TestDispatch_CategoryMatching(t *testing.T) {
	d, repo, mailer := newDispatcher(t, 50)
	ctx := context.Background()

	roads := testutil.NewTestCategory(t, repo, "Roadworks", "roadworks")
	water := testutil.NewTestCategory(t, repo, "Water", "water")

	addSubscriber(t, repo, "everything@example.com", true, nil)
	addSubscriber(t, repo, "roads@example.com", true, []int64{roads.ID})
	addSubscriber(t, repo, "water@example.com", true, []int64{water.ID})

	alert := testutil.NewTestAlert(t, repo, "Street dig", "worker@city.example")
	require.NoError(t, repo.SetAlertCategories(ctx, alert.ID, []int64{roads.ID}))

	require.NoError(t, d.Dispatch(ctx, alert.ID))

	msgs := waitForMessages(t, mailer, 2)
	recipients := []string{msgs[0].To, msgs[1].To}
	assert.ElementsMatch(t, []string{"everything@example.com", "roads@example.com"}, recipients)
}

func TestDispatch_UncategorizedAlertOnlyMatchesEmptyFilters(t *testing.T) {
	d, repo, mailer := newDispatcher(t, 50)
	ctx := context.Background()

	roads := testutil.NewTestCategory(t, repo, "Roadworks", "roadworks")
	addSubscriber(t, repo, "everything@example.com", true, nil)
	addSubscriber(t, repo, "roads@example.com", true, []int64{roads.ID})

	alert := testutil.NewTestAlert(t, repo, "General notice", "worker@city.example")
	require.NoError(t, d.Dispatch(ctx, alert.ID))

	msgs := waitForMessages(t, mailer, 1)
	assert.Equal(t, "everything@example.com", msgs[0].To)
}

func TestDispatch_Batching(t *testing.T) {
	d, repo, mailer := newDispatcher(t, 2)
	ctx := context.Background()

	for i := range 5 {
		addSubscriber(t, repo, fmt.Sprintf("r%d@example.com", i), true, nil)
	}

	alert := testutil.NewTestAlert(t, repo, "Mass notice", "worker@city.example")
	require.NoError(t, d.Dispatch(ctx, alert.ID))

	waitForMessages(t, mailer, 5)

	fresh, err := repo.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), fresh.NotificationsCount)
}

func TestDispatch_SkipsUnpublished(t *testing.T) {
	d, repo, mailer := newDispatcher(t, 50)
	ctx := context.Background()

	addSubscriber(t, repo, "all@example.com", true, nil)

	alert := &models.Alert{
		Title:       "Draft",
		StartDate:   time.Now().Format(models.DateFormat),
		Severity:    models.SeverityNone,
		Status:      models.StatusPending,
		SubmittedBy: "worker@city.example",
	}
	require.NoError(t, repo.CreateAlert(ctx, alert, time.Now()))

	require.NoError(t, d.Dispatch(ctx, alert.ID))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, mailer.Messages())

	fresh, err := repo.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Nil(t, fresh.NotificationsSent)
}

func TestResend(t *testing.T) {
	d, repo, mailer := newDispatcher(t, 50)
	ctx := context.Background()

	addSubscriber(t, repo, "all@example.com", true, nil)
	alert := testutil.NewTestAlert(t, repo, "Water outage", "worker@city.example")

	require.NoError(t, d.Dispatch(ctx, alert.ID))
	waitForMessages(t, mailer, 1)

	require.NoError(t, d.Resend(ctx, alert.ID))
	waitForMessages(t, mailer, 2)
}

func TestDispatch_SubscriberGoneBeforeSend(t *testing.T) {
	d, repo, mailer := newDispatcher(t, 50)
	ctx := context.Background()

	addSubscriber(t, repo, "gone@example.com", true, nil)
	alert := testutil.NewTestAlert(t, repo, "Water outage", "worker@city.example")

	// Deleting between scheduling and sending must not fail the batch;
	// exercise the path directly.
	sub, err := repo.GetSubscriberByEmail(ctx, "gone@example.com")
	require.NoError(t, err)
	_, err = repo.DeleteSubscriberByUnsubscribeToken(ctx, sub.UnsubscribeToken)
	require.NoError(t, err)

	d.SendBatch(ctx, alert.ID, []string{"gone@example.com"})
	assert.Empty(t, mailer.Messages())
}

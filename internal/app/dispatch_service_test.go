package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"chore_notifier/internal/domain/household"
	"chore_notifier/internal/domain/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchSendsOnPrimaryChannel(t *testing.T) {
	ctx := context.Background()
	e := newDispatchEnv(10)
	msg := e.enqueueDue(ctx, "m1")

	res, err := e.dispatch.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Claimed)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, e.chat.calls)
	assert.Zero(t, e.sms.calls)
	assert.Zero(t, e.email.calls)

	got, err := e.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, got.Status)
	assert.Equal(t, []notification.Channel{notification.ChannelChat}, got.Attempted)

	recs, err := e.dels.ListByMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, notification.DeliverySent, recs[0].Status)
	assert.Equal(t, "chat-1", recs[0].ProviderMessageID)
}

func TestDispatchFallsBackThroughChannels(t *testing.T) {
	ctx := context.Background()
	e := newDispatchEnv(10)
	e.chat.err = errors.New("chat provider down")
	e.sms.err = errors.New("sms rejected")
	msg := e.enqueueDue(ctx, "m1")

	res, err := e.dispatch.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, e.chat.calls)
	assert.Equal(t, 1, e.sms.calls)
	assert.Equal(t, 1, e.email.calls)

	got, err := e.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, got.Status)
	assert.Equal(t,
		[]notification.Channel{notification.ChannelChat, notification.ChannelSMS, notification.ChannelEmail},
		got.Attempted)

	// One delivery record per real attempt, in attempt order.
	recs, err := e.dels.ListByMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, notification.DeliveryFailed, recs[0].Status)
	assert.Equal(t, "chat provider down", recs[0].ErrorCode)
	assert.Equal(t, notification.DeliveryFailed, recs[1].Status)
	assert.Equal(t, notification.DeliverySent, recs[2].Status)
	assert.Equal(t, notification.ChannelEmail, recs[2].Channel)
}

func TestDispatchFailsWhenEveryChannelExhausted(t *testing.T) {
	ctx := context.Background()
	e := newDispatchEnv(10)
	e.chat.err = errors.New("chat down")
	e.sms.err = errors.New("sms down")
	e.email.err = errors.New("smtp down")
	msg := e.enqueueDue(ctx, "m1")

	res, err := e.dispatch.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	got, err := e.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, got.Status)
	assert.Equal(t, "smtp down", got.LastError)

	recs, err := e.dels.ListByMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	// Terminal failure is final: the next cycle has nothing to claim.
	res, err = e.dispatch.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
}

func TestDispatchQuietHoursDeferWholeMessage(t *testing.T) {
	ctx := context.Background()
	e := newDispatchEnv(10)
	enabled := true
	_, err := e.prefSvc.Update(ctx, "u1", "f1", notification.Update{
		QuietHours: &notification.QuietHoursUpdate{Enabled: &enabled},
	})
	require.NoError(t, err)

	// Default window is 22:00-08:00 UTC; move the clock inside it.
	e.now = time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
	msg := e.enqueueDue(ctx, "m1")

	res, err := e.dispatch.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deferred)
	assert.Zero(t, e.chat.calls+e.sms.calls+e.email.calls)

	got, err := e.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusQueued, got.Status)
	assert.True(t, got.ScheduledAt.Equal(time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC)))

	recs, err := e.dels.ListByMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDispatchRateLimitDefersToWindowReset(t *testing.T) {
	ctx := context.Background()
	e := newDispatchEnv(1)
	for _, ch := range notification.Channels() {
		require.True(t, e.limiter.Allow("u1", ch))
	}
	msg := e.enqueueDue(ctx, "m1")

	res, err := e.dispatch.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deferred)
	assert.Zero(t, e.chat.calls+e.sms.calls+e.email.calls)

	got, err := e.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusQueued, got.Status)
	assert.True(t, got.ScheduledAt.Equal(e.now.Add(time.Hour)))
}

func TestDispatchRateLimitedChannelFallsBack(t *testing.T) {
	ctx := context.Background()
	e := newDispatchEnv(1)
	// Only the chat window is full; SMS must carry the message.
	require.True(t, e.limiter.Allow("u1", notification.ChannelChat))
	msg := e.enqueueDue(ctx, "m1")

	res, err := e.dispatch.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Zero(t, e.chat.calls)
	assert.Equal(t, 1, e.sms.calls)

	got, err := e.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, got.Status)
}

func TestDispatchSkipsMessageForClosedChore(t *testing.T) {
	ctx := context.Background()
	e := newDispatchEnv(10)
	msg := e.enqueueDue(ctx, "m1")
	e.houses.PutChore(&household.Chore{
		ID: "c1", FamilyID: "f1", Title: "Dishes", AssignedTo: "u1",
		DueDate: e.now.Add(24 * time.Hour), Status: household.ChoreStatusVerified,
	})

	res, err := e.dispatch.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, e.chat.calls+e.sms.calls+e.email.calls)

	got, err := e.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSkipped, got.Status)
}

func TestDispatchUnconfiguredChannelFallsBackWithoutRecord(t *testing.T) {
	ctx := context.Background()
	e := newDispatchEnv(10)
	e.chat.configured = false
	msg := e.enqueueDue(ctx, "m1")

	res, err := e.dispatch.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Zero(t, e.chat.calls)
	assert.Equal(t, 1, e.sms.calls)

	got, err := e.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t,
		[]notification.Channel{notification.ChannelChat, notification.ChannelSMS},
		got.Attempted)

	// Delivery records track real provider attempts only.
	recs, err := e.dels.ListByMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, notification.ChannelSMS, recs[0].Channel)
}

func TestMessageStatusUsesLocalRecord(t *testing.T) {
	ctx := context.Background()
	e := newDispatchEnv(10)
	e.enqueueDue(ctx, "m1")
	_, err := e.dispatch.DispatchDue(ctx, 10)
	require.NoError(t, err)

	// fakeAdapter has no provider-side lookup, so the locally recorded
	// status is served.
	status, err := e.dispatch.MessageStatus(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, notification.DeliverySent, status.Status)

	_, err = e.dispatch.MessageStatus(ctx, "unknown-id")
	assert.ErrorIs(t, err, notification.ErrDeliveryNotFound)
}

func TestDeliveryStatsRangeAndSnapshot(t *testing.T) {
	ctx := context.Background()
	e := newDispatchEnv(10)
	e.enqueueDue(ctx, "m1")
	_, err := e.dispatch.DispatchDue(ctx, 10)
	require.NoError(t, err)

	stats, err := e.dispatch.DeliveryStats(ctx, "day")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, 1.0, stats.SuccessRate)

	_, err = e.dispatch.DeliveryStats(ctx, "fortnight")
	assert.Error(t, err)

	status, err := e.dispatch.ServiceStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status.Channels, 3)
	for _, ch := range status.Channels {
		assert.True(t, ch.Configured)
	}
	assert.Equal(t, 1, status.Queue[notification.StatusSent])
}

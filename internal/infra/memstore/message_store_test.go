package memstore

import (
	"context"
	"testing"
	"time"

	"chore_notifier/internal/domain/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMessage(id, source, recipient string, kind notification.Kind, at time.Time) *notification.ScheduledMessage {
	return &notification.ScheduledMessage{
		ID:          id,
		SourceID:    source,
		RecipientID: recipient,
		FamilyID:    "f1",
		Kind:        kind,
		Channels:    []notification.Channel{notification.ChannelChat, notification.ChannelEmail},
		Payload:     notification.Payload{Body: "body"},
		ScheduledAt: at,
	}
}

func TestEnqueueRejectsActiveDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(12 * time.Hour)
	at := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Enqueue(ctx, newMessage("m1", "c1", "u1", notification.KindReminderFirst, at)))
	err := s.Enqueue(ctx, newMessage("m2", "c1", "u1", notification.KindReminderFirst, at))
	assert.ErrorIs(t, err, notification.ErrDuplicateMessage)

	// Same source, different stage is a different key.
	require.NoError(t, s.Enqueue(ctx, newMessage("m3", "c1", "u1", notification.KindReminderSecond, at)))
}

func TestEnqueueReplacesStaleTerminalOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(12 * time.Hour)
	at := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Enqueue(ctx, newMessage("m1", "c1", "u1", notification.KindReminderFirst, at)))
	claimed, err := s.ClaimDue(ctx, at, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, s.MarkSent(ctx, "m1"))

	// Terminal but not stale enough: still a duplicate.
	err = s.Enqueue(ctx, newMessage("m2", "c1", "u1", notification.KindReminderFirst, at.Add(time.Hour)))
	assert.ErrorIs(t, err, notification.ErrDuplicateMessage)

	// A new due-date cycle clears the recycle interval and replaces.
	require.NoError(t, s.Enqueue(ctx, newMessage("m3", "c1", "u1", notification.KindReminderFirst, at.Add(48*time.Hour))))
	got, err := s.GetByID(ctx, "m3")
	require.NoError(t, err)
	assert.Equal(t, notification.StatusQueued, got.Status)
	_, err = s.GetByID(ctx, "m1")
	assert.ErrorIs(t, err, notification.ErrMessageNotFound)
}

func TestClaimDueOrdersAndTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(12 * time.Hour)
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Enqueue(ctx, newMessage("late", "c1", "u1", notification.KindReminderFirst, base.Add(time.Minute))))
	require.NoError(t, s.Enqueue(ctx, newMessage("early", "c2", "u1", notification.KindReminderFirst, base)))
	require.NoError(t, s.Enqueue(ctx, newMessage("tie", "c3", "u1", notification.KindReminderFirst, base)))
	require.NoError(t, s.Enqueue(ctx, newMessage("future", "c4", "u1", notification.KindReminderFirst, base.Add(time.Hour))))

	claimed, err := s.ClaimDue(ctx, base.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	assert.Equal(t, "early", claimed[0].ID) // scheduledAt ascending
	assert.Equal(t, "tie", claimed[1].ID)   // tie broken by insertion order
	assert.Equal(t, "late", claimed[2].ID)
	for _, m := range claimed {
		assert.Equal(t, notification.StatusDispatching, m.Status)
	}

	// A second, overlapping claim sees nothing.
	again, err := s.ClaimDue(ctx, base.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStatusTransitionsAreCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(12 * time.Hour)
	at := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Enqueue(ctx, newMessage("m1", "c1", "u1", notification.KindReminderFirst, at)))

	// Queued, not dispatching: terminal transitions must refuse.
	assert.Error(t, s.MarkSent(ctx, "m1"))
	assert.Error(t, s.Requeue(ctx, "m1", at.Add(time.Hour)))

	_, err := s.ClaimDue(ctx, at, 1)
	require.NoError(t, err)
	require.NoError(t, s.Requeue(ctx, "m1", at.Add(time.Hour)))

	got, err := s.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, notification.StatusQueued, got.Status)
	assert.True(t, got.ScheduledAt.Equal(at.Add(time.Hour)))
}

func TestCancelPendingForSource(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(12 * time.Hour)
	at := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Enqueue(ctx, newMessage("m1", "c1", "u1", notification.KindReminderFirst, at)))
	require.NoError(t, s.Enqueue(ctx, newMessage("m2", "c1", "u2", notification.KindReminderFirst, at)))
	require.NoError(t, s.Enqueue(ctx, newMessage("m3", "c2", "u1", notification.KindReminderFirst, at)))

	n, err := s.CancelPendingForSource(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, _ := s.GetByID(ctx, "m1")
	assert.Equal(t, notification.StatusSkipped, got.Status)
	got, _ = s.GetByID(ctx, "m3")
	assert.Equal(t, notification.StatusQueued, got.Status)

	ids, err := s.ActiveSourceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids)
}

func TestReminderStatsScopedByFamily(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(12 * time.Hour)
	at := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	m := newMessage("m1", "c1", "u1", notification.KindReminderFirst, at)
	require.NoError(t, s.Enqueue(ctx, m))
	other := newMessage("m2", "c2", "u2", notification.KindReminderFinal, at)
	other.FamilyID = "f2"
	require.NoError(t, s.Enqueue(ctx, other))

	all, err := s.ReminderStats(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := s.ReminderStats(ctx, "f2")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, notification.StageFinal, scoped[0].Stage)
	assert.Equal(t, 1, scoped[0].Count)
}

func TestPruneTerminalHonorsRetention(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(12 * time.Hour)
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.Enqueue(ctx, newMessage("m1", "c1", "u1", notification.KindReminderFirst, now)))
	_, err := s.ClaimDue(ctx, now, 1)
	require.NoError(t, err)
	require.NoError(t, s.MarkSent(ctx, "m1"))

	// Not old enough yet.
	n, err := s.PruneTerminal(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.PruneTerminal(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.GetByID(ctx, "m1")
	assert.ErrorIs(t, err, notification.ErrMessageNotFound)
}

func TestUpcomingIsReadOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(12 * time.Hour)
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Enqueue(ctx, newMessage("m1", "c1", "u1", notification.KindReminderFirst, now.Add(time.Hour))))
	require.NoError(t, s.Enqueue(ctx, newMessage("m2", "c2", "u1", notification.KindReminderFirst, now.Add(48*time.Hour))))

	up, err := s.Upcoming(ctx, now, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, up, 1)
	assert.Equal(t, "m1", up[0].ID)

	// The projection must not claim anything.
	got, _ := s.GetByID(ctx, "m1")
	assert.Equal(t, notification.StatusQueued, got.Status)
}

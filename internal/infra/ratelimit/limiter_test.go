package ratelimit

import (
	"testing"
	"time"

	"chore_notifier/internal/domain/notification"

	"github.com/stretchr/testify/assert"
)

func TestAllowDeniesBeyondCap(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(time.Hour, 3, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("u1", notification.ChannelSMS), "send %d should be allowed", i+1)
	}
	assert.False(t, l.Allow("u1", notification.ChannelSMS), "cap exceeded")

	// A denied call must not consume capacity: after the window passes the
	// original three sends, exactly the cap is available again.
	now = now.Add(61 * time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("u1", notification.ChannelSMS))
	}
	assert.False(t, l.Allow("u1", notification.ChannelSMS))
}

func TestKeysAreIndependent(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(time.Hour, 1, func() time.Time { return now })

	assert.True(t, l.Allow("u1", notification.ChannelSMS))
	assert.False(t, l.Allow("u1", notification.ChannelSMS))

	// Same recipient, other channel; other recipient, same channel.
	assert.True(t, l.Allow("u1", notification.ChannelEmail))
	assert.True(t, l.Allow("u2", notification.ChannelSMS))
}

func TestResetAt(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(time.Hour, 1, func() time.Time { return now })

	first := now
	assert.True(t, l.Allow("u1", notification.ChannelChat))
	assert.True(t, l.ResetAt("u1", notification.ChannelChat).Equal(first.Add(time.Hour)))
}

func TestSlidingWindowEvictsLazily(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(time.Hour, 2, func() time.Time { return now })

	assert.True(t, l.Allow("u1", notification.ChannelChat))
	now = now.Add(30 * time.Minute)
	assert.True(t, l.Allow("u1", notification.ChannelChat))
	assert.False(t, l.Allow("u1", notification.ChannelChat))

	// The first send leaves the window; one slot opens.
	now = now.Add(31 * time.Minute)
	assert.True(t, l.Allow("u1", notification.ChannelChat))
	assert.False(t, l.Allow("u1", notification.ChannelChat))
}

func TestOccupancyGroupsByChannel(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(time.Hour, 10, func() time.Time { return now })

	l.Allow("u1", notification.ChannelChat)
	l.Allow("u2", notification.ChannelChat)
	l.Allow("u1", notification.ChannelEmail)

	occ := l.Occupancy()
	assert.Equal(t, 2, occ[notification.ChannelChat])
	assert.Equal(t, 1, occ[notification.ChannelEmail])
	assert.Equal(t, 0, occ[notification.ChannelSMS])
}

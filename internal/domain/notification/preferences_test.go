package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	p := DefaultPreferences("u1", "f1")
	require.NoError(t, p.Validate())
}

func TestValidateRejectsReversedReminderOrder(t *testing.T) {
	p := DefaultPreferences("u1", "f1")
	p.ReminderTiming.FirstReminderDays = 1
	p.ReminderTiming.SecondReminderDays = 3

	err := p.Validate()
	require.Error(t, err)
	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "reminderTiming", verr.Field)
}

func TestValidateRejectsOutOfRangeTiming(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Preferences)
	}{
		{"first too large", func(p *Preferences) { p.ReminderTiming.FirstReminderDays = 8 }},
		{"second negative", func(p *Preferences) { p.ReminderTiming.SecondReminderDays = -1 }},
		{"final too large", func(p *Preferences) { p.ReminderTiming.FinalReminderHours = 25 }},
		{"weekly report day", func(p *Preferences) { p.WeeklyReportDay = 7 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultPreferences("u1", "f1")
			tc.mutate(p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestValidateRejectsBadClockValues(t *testing.T) {
	p := DefaultPreferences("u1", "f1")
	p.QuietHours.Enabled = true
	p.QuietHours.Start = "25:00"
	assert.Error(t, p.Validate())

	p = DefaultPreferences("u1", "f1")
	p.QuietHours.Enabled = true
	p.QuietHours.End = "8 o'clock"
	assert.Error(t, p.Validate())

	p = DefaultPreferences("u1", "f1")
	p.DailyDigestTime = "99:99"
	assert.Error(t, p.Validate())
}

func TestValidateRejectsDuplicateFallback(t *testing.T) {
	p := DefaultPreferences("u1", "f1")
	p.FallbackChannels = []Channel{ChannelSMS, ChannelSMS}
	assert.Error(t, p.Validate())

	// Primary repeated in the fallback list is also a duplicate.
	p.FallbackChannels = []Channel{p.PrimaryChannel}
	assert.Error(t, p.Validate())
}

func TestValidateRejectsUnknownTimezone(t *testing.T) {
	p := DefaultPreferences("u1", "f1")
	p.QuietHours.Enabled = true
	p.QuietHours.Timezone = "Mars/Olympus_Mons"
	assert.Error(t, p.Validate())
}

func TestApplyIsIdempotent(t *testing.T) {
	p := DefaultPreferences("u1", "f1")
	primary := ChannelEmail
	enabled := true
	start := "21:30"
	update := Update{
		PrimaryChannel:   &primary,
		FallbackChannels: []Channel{ChannelChat},
		QuietHours:       &QuietHoursUpdate{Enabled: &enabled, Start: &start},
		Enabled:          map[Kind]bool{KindDailyDigest: true},
	}

	once := p.Apply(update)
	twice := once.Apply(update)
	assert.Equal(t, once, twice)

	// The original document is untouched.
	assert.Equal(t, ChannelChat, p.PrimaryChannel)
	assert.False(t, p.QuietHours.Enabled)
}

func TestApplyMergesFieldByField(t *testing.T) {
	p := DefaultPreferences("u1", "f1")
	start := "23:00"
	merged := p.Apply(Update{QuietHours: &QuietHoursUpdate{Start: &start}})

	assert.Equal(t, "23:00", merged.QuietHours.Start)
	// Untouched quiet-hours fields keep their stored values.
	assert.Equal(t, "08:00", merged.QuietHours.End)
	assert.Equal(t, "UTC", merged.QuietHours.Timezone)
}

func TestQuietHoursContainsSameDayWindow(t *testing.T) {
	q := QuietHours{Enabled: true, Start: "13:00", End: "14:00", Timezone: "UTC"}

	assert.True(t, q.Contains(time.Date(2026, 8, 24, 13, 30, 0, 0, time.UTC)))
	assert.False(t, q.Contains(time.Date(2026, 8, 24, 12, 59, 0, 0, time.UTC)))
	// Half-open: the end minute is outside.
	assert.False(t, q.Contains(time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)))
}

func TestQuietHoursWrapsMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	q := QuietHours{Enabled: true, Start: "22:00", End: "08:00", Timezone: "America/New_York"}

	assert.True(t, q.Contains(time.Date(2026, 8, 24, 23, 0, 0, 0, loc)))
	assert.True(t, q.Contains(time.Date(2026, 8, 24, 3, 0, 0, 0, loc)))
	assert.False(t, q.Contains(time.Date(2026, 8, 24, 12, 0, 0, 0, loc)))

	// An instant expressed in another zone is still judged in the
	// recipient's zone: 03:00 UTC on Aug 24 is 23:00 Aug 23 in New York.
	assert.True(t, q.Contains(time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC)))
}

func TestQuietHoursNextEnd(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	q := QuietHours{Enabled: true, Start: "22:00", End: "08:00", Timezone: "America/New_York"}

	// Before midnight the window closes tomorrow morning.
	at := time.Date(2026, 8, 24, 23, 0, 0, 0, loc)
	assert.True(t, q.NextEnd(at).Equal(time.Date(2026, 8, 25, 8, 0, 0, 0, loc)))

	// After midnight it closes the same morning.
	at = time.Date(2026, 8, 25, 3, 0, 0, 0, loc)
	assert.True(t, q.NextEnd(at).Equal(time.Date(2026, 8, 25, 8, 0, 0, 0, loc)))
}

func TestQuietHoursDisabledNeverContains(t *testing.T) {
	q := QuietHours{Enabled: false, Start: "00:00", End: "23:59", Timezone: "UTC"}
	assert.False(t, q.Contains(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)))
}

// internal/domain/notification/preferences.go
package notification

import (
	"fmt"
	"time"
)

// ValidationError describes a rejected preference value. The write that
// produced it is never partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// QuietHours is a recipient-configured local-time window during which no
// message may be sent. Start and End are "HH:MM" in the given IANA timezone;
// the window may wrap past midnight (e.g. 22:00–08:00).
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"startTime"`
	End      string `json:"endTime"`
	Timezone string `json:"timezone"`
}

// location resolves the configured timezone, falling back to UTC when it is
// empty or unknown.
func (q QuietHours) location() *time.Location {
	if q.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Contains reports whether t falls inside the quiet window, evaluated in the
// recipient's timezone. The window is half-open: [Start, End).
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err1 := minuteOfDay(q.Start)
	end, err2 := minuteOfDay(q.End)
	if err1 != nil || err2 != nil || start == end {
		return false
	}
	local := t.In(q.location())
	cur := local.Hour()*60 + local.Minute()
	if start < end {
		return cur >= start && cur < end
	}
	// Window wraps past midnight.
	return cur >= start || cur < end
}

// NextEnd returns the first instant at or after t at which the quiet window
// closes. Only meaningful when Contains(t) is true.
func (q QuietHours) NextEnd(t time.Time) time.Time {
	end, err := minuteOfDay(q.End)
	if err != nil {
		return t
	}
	local := t.In(q.location())
	candidate := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, local.Location())
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// ReminderTiming anchors the three reminder stages to a chore's due date.
// First fires furthest from the deadline, final closest.
type ReminderTiming struct {
	FirstReminderDays  int `json:"firstReminderDays"`
	SecondReminderDays int `json:"secondReminderDays"`
	FinalReminderHours int `json:"finalReminderHours"`
}

// Preferences is one recipient's messaging configuration within a family.
// Created lazily with defaults on first access; never deleted.
type Preferences struct {
	UserID           string         `json:"userId"`
	FamilyID         string         `json:"familyId"`
	PrimaryChannel   Channel        `json:"primaryChannel"`
	FallbackChannels []Channel      `json:"fallbackChannels"`
	QuietHours       QuietHours     `json:"quietHours"`
	ReminderTiming   ReminderTiming `json:"reminderTiming"`
	DailyDigestTime  string         `json:"dailyDigestTime"`
	WeeklyReportDay  int            `json:"weeklyReportDay"`
	Enabled          map[Kind]bool  `json:"enabledNotifications"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// DefaultPreferences is the document created on first access.
func DefaultPreferences(userID, familyID string) *Preferences {
	return &Preferences{
		UserID:           userID,
		FamilyID:         familyID,
		PrimaryChannel:   ChannelChat,
		FallbackChannels: []Channel{ChannelSMS, ChannelEmail},
		QuietHours: QuietHours{
			Enabled:  false,
			Start:    "22:00",
			End:      "08:00",
			Timezone: "UTC",
		},
		ReminderTiming: ReminderTiming{
			FirstReminderDays:  3,
			SecondReminderDays: 1,
			FinalReminderHours: 2,
		},
		DailyDigestTime: "08:00",
		WeeklyReportDay: 0,
		Enabled: map[Kind]bool{
			KindReminderFirst:  true,
			KindReminderSecond: true,
			KindReminderFinal:  true,
			KindChoreCompleted: true,
			KindChoreVerified:  true,
			KindDailyDigest:    false,
			KindWeeklyReport:   false,
		},
	}
}

// ChannelOrder is the attempt order for this recipient: primary first, then
// the configured fallbacks.
func (p *Preferences) ChannelOrder() []Channel {
	order := make([]Channel, 0, 1+len(p.FallbackChannels))
	order = append(order, p.PrimaryChannel)
	order = append(order, p.FallbackChannels...)
	return order
}

// Validate checks the whole document. A non-nil result is always a
// *ValidationError.
func (p *Preferences) Validate() error {
	if !p.PrimaryChannel.Valid() {
		return &ValidationError{Field: "primaryChannel", Reason: fmt.Sprintf("unknown channel %q", p.PrimaryChannel)}
	}
	seen := map[Channel]bool{p.PrimaryChannel: true}
	for _, ch := range p.FallbackChannels {
		if !ch.Valid() {
			return &ValidationError{Field: "fallbackChannels", Reason: fmt.Sprintf("unknown channel %q", ch)}
		}
		if seen[ch] {
			return &ValidationError{Field: "fallbackChannels", Reason: fmt.Sprintf("channel %s listed more than once", ch)}
		}
		seen[ch] = true
	}
	if p.QuietHours.Enabled {
		if _, err := minuteOfDay(p.QuietHours.Start); err != nil {
			return &ValidationError{Field: "quietHours.startTime", Reason: err.Error()}
		}
		if _, err := minuteOfDay(p.QuietHours.End); err != nil {
			return &ValidationError{Field: "quietHours.endTime", Reason: err.Error()}
		}
		if p.QuietHours.Timezone != "" {
			if _, err := time.LoadLocation(p.QuietHours.Timezone); err != nil {
				return &ValidationError{Field: "quietHours.timezone", Reason: fmt.Sprintf("unknown timezone %q", p.QuietHours.Timezone)}
			}
		}
	}
	t := p.ReminderTiming
	if t.FirstReminderDays < 0 || t.FirstReminderDays > 7 {
		return &ValidationError{Field: "reminderTiming.firstReminderDays", Reason: "must be between 0 and 7"}
	}
	if t.SecondReminderDays < 0 || t.SecondReminderDays > 7 {
		return &ValidationError{Field: "reminderTiming.secondReminderDays", Reason: "must be between 0 and 7"}
	}
	if t.FinalReminderHours < 0 || t.FinalReminderHours > 24 {
		return &ValidationError{Field: "reminderTiming.finalReminderHours", Reason: "must be between 0 and 24"}
	}
	if t.FirstReminderDays < t.SecondReminderDays {
		return &ValidationError{Field: "reminderTiming", Reason: "firstReminderDays must be greater than or equal to secondReminderDays"}
	}
	if p.DailyDigestTime != "" {
		if _, err := minuteOfDay(p.DailyDigestTime); err != nil {
			return &ValidationError{Field: "dailyDigestTime", Reason: err.Error()}
		}
	}
	if p.WeeklyReportDay < 0 || p.WeeklyReportDay > 6 {
		return &ValidationError{Field: "weeklyReportDay", Reason: "must be between 0 (Sunday) and 6"}
	}
	return nil
}

// QuietHoursUpdate is a partial update of the quiet-hours block.
type QuietHoursUpdate struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Start    *string `json:"startTime,omitempty"`
	End      *string `json:"endTime,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
}

// ReminderTimingUpdate is a partial update of the reminder-timing block.
type ReminderTimingUpdate struct {
	FirstReminderDays  *int `json:"firstReminderDays,omitempty"`
	SecondReminderDays *int `json:"secondReminderDays,omitempty"`
	FinalReminderHours *int `json:"finalReminderHours,omitempty"`
}

// Update is a partial preferences document. Nil fields leave the stored
// value untouched; the Enabled map is merged key by key.
type Update struct {
	PrimaryChannel   *Channel              `json:"primaryChannel,omitempty"`
	FallbackChannels []Channel             `json:"fallbackChannels,omitempty"`
	QuietHours       *QuietHoursUpdate     `json:"quietHours,omitempty"`
	ReminderTiming   *ReminderTimingUpdate `json:"reminderTiming,omitempty"`
	DailyDigestTime  *string               `json:"dailyDigestTime,omitempty"`
	WeeklyReportDay  *int                  `json:"weeklyReportDay,omitempty"`
	Enabled          map[Kind]bool         `json:"enabledNotifications,omitempty"`
}

// Apply merges the partial update into a copy of p. The receiver is not
// modified; applying the same update twice yields the same document.
func (p *Preferences) Apply(u Update) *Preferences {
	merged := *p
	merged.FallbackChannels = append([]Channel(nil), p.FallbackChannels...)
	merged.Enabled = make(map[Kind]bool, len(p.Enabled))
	for k, v := range p.Enabled {
		merged.Enabled[k] = v
	}

	if u.PrimaryChannel != nil {
		merged.PrimaryChannel = *u.PrimaryChannel
	}
	if u.FallbackChannels != nil {
		merged.FallbackChannels = append([]Channel(nil), u.FallbackChannels...)
	}
	if u.QuietHours != nil {
		if u.QuietHours.Enabled != nil {
			merged.QuietHours.Enabled = *u.QuietHours.Enabled
		}
		if u.QuietHours.Start != nil {
			merged.QuietHours.Start = *u.QuietHours.Start
		}
		if u.QuietHours.End != nil {
			merged.QuietHours.End = *u.QuietHours.End
		}
		if u.QuietHours.Timezone != nil {
			merged.QuietHours.Timezone = *u.QuietHours.Timezone
		}
	}
	if u.ReminderTiming != nil {
		if u.ReminderTiming.FirstReminderDays != nil {
			merged.ReminderTiming.FirstReminderDays = *u.ReminderTiming.FirstReminderDays
		}
		if u.ReminderTiming.SecondReminderDays != nil {
			merged.ReminderTiming.SecondReminderDays = *u.ReminderTiming.SecondReminderDays
		}
		if u.ReminderTiming.FinalReminderHours != nil {
			merged.ReminderTiming.FinalReminderHours = *u.ReminderTiming.FinalReminderHours
		}
	}
	if u.DailyDigestTime != nil {
		merged.DailyDigestTime = *u.DailyDigestTime
	}
	if u.WeeklyReportDay != nil {
		merged.WeeklyReportDay = *u.WeeklyReportDay
	}
	for k, v := range u.Enabled {
		merged.Enabled[k] = v
	}
	return &merged
}

// minuteOfDay parses an "HH:MM" clock value into minutes since midnight.
func minuteOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("time %q is not in HH:MM format", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q is out of range", s)
	}
	return h*60 + m, nil
}

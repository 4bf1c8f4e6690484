// internal/domain/notification/shared_types.go
package notification

// Channel identifies one outbound carrier.
type Channel string

const (
	ChannelChat  Channel = "CHAT"
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

// Channels lists every known carrier in default priority order.
func Channels() []Channel {
	return []Channel{ChannelChat, ChannelSMS, ChannelEmail}
}

// Valid reports whether c names a known carrier.
func (c Channel) Valid() bool {
	switch c {
	case ChannelChat, ChannelSMS, ChannelEmail:
		return true
	}
	return false
}

// Stage is one rung of the reminder escalation ladder.
type Stage string

const (
	StageFirst  Stage = "FIRST"
	StageSecond Stage = "SECOND"
	StageFinal  Stage = "FINAL"
)

// Order gives the total ordering of stages; a higher value is closer to the
// chore's due date.
func (s Stage) Order() int {
	switch s {
	case StageFirst:
		return 1
	case StageSecond:
		return 2
	case StageFinal:
		return 3
	}
	return 0
}

// Kind returns the message kind carrying this stage.
func (s Stage) Kind() Kind {
	switch s {
	case StageFirst:
		return KindReminderFirst
	case StageSecond:
		return KindReminderSecond
	case StageFinal:
		return KindReminderFinal
	}
	return ""
}

// Kind identifies what a scheduled message is about. Reminder kinds encode
// their stage so that (source, recipient, kind) forms the idempotency key.
type Kind string

const (
	KindReminderFirst  Kind = "REMINDER_FIRST"
	KindReminderSecond Kind = "REMINDER_SECOND"
	KindReminderFinal  Kind = "REMINDER_FINAL"
	KindChoreCompleted Kind = "CHORE_COMPLETED"
	KindChoreVerified  Kind = "CHORE_VERIFIED"
	KindDailyDigest    Kind = "DAILY_DIGEST"
	KindWeeklyReport   Kind = "WEEKLY_REPORT"
)

// Stage maps a reminder kind back to its stage. ok is false for
// non-reminder kinds.
func (k Kind) Stage() (Stage, bool) {
	switch k {
	case KindReminderFirst:
		return StageFirst, true
	case KindReminderSecond:
		return StageSecond, true
	case KindReminderFinal:
		return StageFinal, true
	}
	return "", false
}

// MessageStatus is the lifecycle state of a ScheduledMessage.
type MessageStatus string

const (
	StatusQueued      MessageStatus = "QUEUED"
	StatusDispatching MessageStatus = "DISPATCHING"
	StatusSent        MessageStatus = "SENT"
	StatusFailed      MessageStatus = "FAILED"
	StatusSkipped     MessageStatus = "SKIPPED"
)

// Terminal reports whether the status is an end state.
func (s MessageStatus) Terminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// DeliveryStatus is the state of one send attempt on one channel.
type DeliveryStatus string

const (
	DeliveryQueued      DeliveryStatus = "QUEUED"
	DeliverySent        DeliveryStatus = "SENT"
	DeliveryDelivered   DeliveryStatus = "DELIVERED"
	DeliveryFailed      DeliveryStatus = "FAILED"
	DeliveryUndelivered DeliveryStatus = "UNDELIVERED"
)

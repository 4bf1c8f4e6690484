// internal/domain/notification/message.go
package notification

import "time"

// Payload is the channel-agnostic content of an outbound message. Adapters
// decide how to render it for their carrier.
type Payload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// MessageKey is the natural idempotency key of a scheduled message: at most
// one active message may exist per key.
type MessageKey struct {
	SourceID    string
	RecipientID string
	Kind        Kind
}

// ScheduledMessage is one logical notification awaiting (or past) dispatch.
// Created by a producer such as the reminder sweep; mutated only by the
// dispatcher, and never by two dispatch attempts concurrently.
type ScheduledMessage struct {
	ID          string
	SourceID    string
	RecipientID string
	FamilyID    string
	Kind        Kind
	Channels    []Channel // candidate order snapshot taken at enqueue time
	Attempted   []Channel // channels already tried, in attempt order
	Payload     Payload
	ScheduledAt time.Time
	Status      MessageStatus
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key returns the idempotency key of the message.
func (m *ScheduledMessage) Key() MessageKey {
	return MessageKey{SourceID: m.SourceID, RecipientID: m.RecipientID, Kind: m.Kind}
}

// AttemptedChannel reports whether ch has already been tried for this
// message in any dispatch cycle.
func (m *ScheduledMessage) AttemptedChannel(ch Channel) bool {
	for _, a := range m.Attempted {
		if a == ch {
			return true
		}
	}
	return false
}

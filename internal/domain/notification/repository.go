// internal/domain/notification/repository.go
package notification

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by every repository implementation.
var (
	ErrMessageNotFound     = errors.New("scheduled message not found")
	ErrDuplicateMessage    = errors.New("an active message already exists for this key")
	ErrPreferencesNotFound = errors.New("notification preferences not found")
	ErrDeliveryNotFound    = errors.New("delivery record not found")
)

// StageStatusCount is one row of the reminder statistics projection.
type StageStatusCount struct {
	Stage  Stage         `json:"stage"`
	Status MessageStatus `json:"status"`
	Count  int           `json:"count"`
}

// MessageRepository holds every ScheduledMessage keyed by its idempotency
// key. Enqueue and ClaimDue are the two operations that race under
// overlapping sweeps; both must be atomic compare-and-set against the stored
// status, not read-then-write.
type MessageRepository interface {
	// Enqueue inserts m. It fails with ErrDuplicateMessage when an entry
	// with the same key is still queued or dispatching, and replaces a
	// terminal prior entry only when m is scheduled far enough after it to
	// represent a new cycle.
	Enqueue(ctx context.Context, m *ScheduledMessage) error
	// ClaimDue returns up to limit queued messages with scheduledAt <= now,
	// in scheduledAt order (ties by insertion order), atomically moving
	// them to DISPATCHING so a concurrent drain cannot claim them too.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledMessage, error)
	// Upcoming is a read-only projection of queued messages due inside the
	// window starting at now.
	Upcoming(ctx context.Context, now time.Time, window time.Duration) ([]*ScheduledMessage, error)
	GetByID(ctx context.Context, id string) (*ScheduledMessage, error)

	// Requeue moves a DISPATCHING message back to QUEUED at the given time
	// (quiet hours or rate-limit deferral).
	Requeue(ctx context.Context, id string, at time.Time) error
	// AddAttempt appends ch to the attempted set, increments the attempt
	// counter and records the last error.
	AddAttempt(ctx context.Context, id string, ch Channel, lastError string) error
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	MarkSkipped(ctx context.Context, id string) error

	// CancelPendingForSource marks every queued or dispatching message for
	// the source as SKIPPED, returning how many were cancelled.
	CancelPendingForSource(ctx context.Context, sourceID string) (int, error)
	// ActiveSourceIDs lists distinct source ids that still have queued or
	// dispatching messages; used by the sweep's cancellation pass.
	ActiveSourceIDs(ctx context.Context) ([]string, error)

	StatusCounts(ctx context.Context) (map[MessageStatus]int, error)
	// QueueDepthByChannel counts queued messages per candidate channel.
	QueueDepthByChannel(ctx context.Context) (map[Channel]int, error)
	// ReminderStats counts reminder messages by stage and status, optionally
	// scoped to one family (empty familyID means all).
	ReminderStats(ctx context.Context, familyID string) ([]StageStatusCount, error)
	// PruneTerminal removes terminal messages older than the given instant.
	PruneTerminal(ctx context.Context, olderThan time.Time) (int64, error)
}

// DeliveryRepository records the lifecycle of send attempts.
type DeliveryRepository interface {
	// Record appends r; prior records are never overwritten.
	Record(ctx context.Context, r *DeliveryRecord) error
	ListByMessage(ctx context.Context, messageID string) ([]*DeliveryRecord, error)
	GetByProviderID(ctx context.Context, providerMessageID string) (*DeliveryRecord, error)
	Stats(ctx context.Context, since time.Time) (*DeliveryStats, error)
}

// PreferenceRepository persists NotificationPreferences documents.
type PreferenceRepository interface {
	Get(ctx context.Context, userID, familyID string) (*Preferences, error)
	// Save upserts the whole validated document.
	Save(ctx context.Context, p *Preferences) error
}

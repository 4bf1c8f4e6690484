// internal/domain/channel/adapter.go
package channel

import (
	"context"
	"errors"
	"time"

	"chore_notifier/internal/domain/household"
	"chore_notifier/internal/domain/notification"
)

// ErrStatusUnsupported is returned by adapters that cannot query
// provider-side delivery status.
var ErrStatusUnsupported = errors.New("adapter does not support status lookup")

// Result is a successful send outcome.
type Result struct {
	ProviderMessageID string
}

// Status is a provider-side delivery status report.
type Status struct {
	Status    notification.DeliveryStatus
	ErrorCode string
	Timestamp time.Time
}

// Adapter is the uniform send contract every carrier satisfies. The
// dispatcher is written once against this interface; callers bound Send with
// a context timeout and treat a timed-out send as a failure.
type Adapter interface {
	Kind() notification.Channel
	// IsConfigured reports whether the carrier's credentials are present.
	// An unconfigured channel is skipped, other channels are unaffected.
	IsConfigured() bool
	Send(ctx context.Context, rcpt *household.User, payload notification.Payload) (*Result, error)
}

// StatusChecker is optionally implemented by adapters whose provider exposes
// delivery receipts. Absence is tolerated and degrades to the locally
// recorded status.
type StatusChecker interface {
	Status(ctx context.Context, providerMessageID string) (*Status, error)
}

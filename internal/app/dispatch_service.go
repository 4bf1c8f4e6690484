// internal/app/dispatch_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"chore_notifier/internal/domain/channel"
	"chore_notifier/internal/domain/household"
	"chore_notifier/internal/domain/notification"
	"chore_notifier/internal/infra/ratelimit"

	"github.com/sirupsen/logrus"
)

// DispatchService turns claimed messages into terminal outcomes. Fallback
// is channel-exhaustion driven: one attempt per channel in the recipient's
// configured order, then terminal failure. Rate limiting and quiet hours
// defer the message instead of failing it.
type DispatchService struct {
	messages    notification.MessageRepository
	deliveries  notification.DeliveryRepository
	households  household.Repository
	prefs       *PreferenceService
	limiter     *ratelimit.Limiter
	adapters    map[notification.Channel]channel.Adapter
	sendTimeout time.Duration
	logger      *logrus.Logger
	now         func() time.Time
}

// DispatchResult summarizes one dispatch cycle.
type DispatchResult struct {
	Claimed  int `json:"claimed"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Deferred int `json:"deferred"`
	Skipped  int `json:"skipped"`
}

// ChannelStatus is one row of the operational status snapshot.
type ChannelStatus struct {
	Channel          notification.Channel `json:"channel"`
	Configured       bool                 `json:"configured"`
	QueueDepth       int                  `json:"queueDepth"`
	LimiterOccupancy int                  `json:"limiterOccupancy"`
}

// ServiceStatus is the read-only snapshot served to dashboards.
type ServiceStatus struct {
	Channels []ChannelStatus                    `json:"channels"`
	Queue    map[notification.MessageStatus]int `json:"queue"`
}

func NewDispatchService(
	messages notification.MessageRepository,
	deliveries notification.DeliveryRepository,
	households household.Repository,
	prefs *PreferenceService,
	limiter *ratelimit.Limiter,
	adapters []channel.Adapter,
	sendTimeout time.Duration,
	logger *logrus.Logger,
) *DispatchService {
	byKind := make(map[notification.Channel]channel.Adapter, len(adapters))
	for _, a := range adapters {
		byKind[a.Kind()] = a
	}
	return &DispatchService{
		messages:    messages,
		deliveries:  deliveries,
		households:  households,
		prefs:       prefs,
		limiter:     limiter,
		adapters:    byKind,
		sendTimeout: sendTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock overrides the service clock; tests only.
func (s *DispatchService) SetClock(now func() time.Time) { s.now = now }

// DispatchDue claims queued messages whose time has come and drives each to
// an outcome. Per-message failures never abort the cycle.
func (s *DispatchService) DispatchDue(ctx context.Context, limit int) (*DispatchResult, error) {
	claimed, err := s.messages.ClaimDue(ctx, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due messages: %w", err)
	}

	result := &DispatchResult{Claimed: len(claimed)}
	for _, msg := range claimed {
		switch s.dispatchOne(ctx, msg) {
		case outcomeSent:
			result.Sent++
		case outcomeFailed:
			result.Failed++
		case outcomeDeferred:
			result.Deferred++
		case outcomeSkipped:
			result.Skipped++
		}
	}
	if result.Claimed > 0 {
		s.logger.WithFields(logrus.Fields{
			"claimed": result.Claimed, "sent": result.Sent, "failed": result.Failed,
			"deferred": result.Deferred, "skipped": result.Skipped,
		}).Info("Dispatch cycle finished")
	}
	return result, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeDeferred
	outcomeSkipped
)

func (s *DispatchService) dispatchOne(ctx context.Context, msg *notification.ScheduledMessage) outcome {
	log := s.logger.WithFields(logrus.Fields{"message_id": msg.ID, "kind": msg.Kind})

	if s.sourceClosed(ctx, msg) {
		if err := s.messages.MarkSkipped(ctx, msg.ID); err != nil {
			log.WithError(err).Error("Failed to mark cancelled message skipped")
		}
		return outcomeSkipped
	}

	prefs, err := s.prefs.Get(ctx, msg.RecipientID, msg.FamilyID)
	if err != nil {
		log.WithError(err).Error("Failed to load recipient preferences; deferring message")
		return s.requeueAt(ctx, msg, s.now().Add(5*time.Minute), log)
	}

	// Quiet hours pause the whole message, not just one channel.
	now := s.now()
	if prefs.QuietHours.Contains(now) {
		end := prefs.QuietHours.NextEnd(now)
		log.WithField("until", end).Info("Inside quiet hours; message rescheduled")
		return s.requeueAt(ctx, msg, end, log)
	}

	rcpt, err := s.households.GetUser(ctx, msg.RecipientID)
	if err != nil {
		log.WithError(err).Error("Recipient cannot be resolved")
		s.markFailed(ctx, msg.ID, fmt.Sprintf("recipient unresolvable: %v", err), log)
		return outcomeFailed
	}

	var candidates []notification.Channel
	for _, ch := range prefs.ChannelOrder() {
		if !msg.AttemptedChannel(ch) {
			candidates = append(candidates, ch)
		}
	}
	if len(candidates) == 0 {
		s.markFailed(ctx, msg.ID, "all channels exhausted", log)
		return outcomeFailed
	}

	var lastErr string
	rateDenied := false
	var earliestReset time.Time
	for _, ch := range candidates {
		if !s.limiter.Allow(msg.RecipientID, ch) {
			reset := s.limiter.ResetAt(msg.RecipientID, ch)
			if earliestReset.IsZero() || reset.Before(earliestReset) {
				earliestReset = reset
			}
			rateDenied = true
			log.WithField("channel", ch).Debug("Rate limit reached; trying next channel")
			continue
		}

		adapter, ok := s.adapters[ch]
		if !ok || !adapter.IsConfigured() {
			// Missing credentials disable this channel only.
			log.WithField("channel", ch).Warn("Channel not configured; falling back")
			if err := s.messages.AddAttempt(ctx, msg.ID, ch, "channel not configured"); err != nil {
				log.WithError(err).Error("Failed to record attempt")
			}
			lastErr = fmt.Sprintf("channel %s not configured", ch)
			continue
		}

		res, sendErr := s.send(ctx, adapter, rcpt, msg.Payload)
		if sendErr != nil {
			s.recordDelivery(ctx, msg.ID, ch, "", notification.DeliveryFailed, sendErr.Error(), log)
			if err := s.messages.AddAttempt(ctx, msg.ID, ch, sendErr.Error()); err != nil {
				log.WithError(err).Error("Failed to record attempt")
			}
			lastErr = sendErr.Error()
			log.WithError(sendErr).WithField("channel", ch).Warn("Send failed; falling back")
			continue
		}

		s.recordDelivery(ctx, msg.ID, ch, res.ProviderMessageID, notification.DeliverySent, "", log)
		if err := s.messages.AddAttempt(ctx, msg.ID, ch, ""); err != nil {
			log.WithError(err).Error("Failed to record attempt")
		}

		// The adapter call could not be interrupted; if the chore closed
		// meanwhile the recipient already learned via another path, so the
		// message is forced to skipped with the delivery record kept.
		if s.sourceClosed(ctx, msg) {
			if err := s.messages.MarkSkipped(ctx, msg.ID); err != nil {
				log.WithError(err).Error("Failed to mark message skipped after send")
			}
			return outcomeSkipped
		}
		if err := s.messages.MarkSent(ctx, msg.ID); err != nil {
			log.WithError(err).Error("Failed to mark message sent")
		}
		log.WithField("channel", ch).Info("Message sent")
		return outcomeSent
	}

	if rateDenied {
		// At least one channel was only rate limited, not broken; retry the
		// whole message when its window reopens.
		log.WithField("retry_at", earliestReset).Info("All remaining channels rate limited; message deferred")
		return s.requeueAt(ctx, msg, earliestReset, log)
	}

	if lastErr == "" {
		lastErr = "no channel available"
	}
	s.markFailed(ctx, msg.ID, lastErr, log)
	log.WithField("last_error", lastErr).Warn("Every channel exhausted; message failed")
	return outcomeFailed
}

// send bounds one adapter call with the configured timeout; a timed-out
// send counts as a failure and triggers fallback.
func (s *DispatchService) send(ctx context.Context, adapter channel.Adapter, rcpt *household.User, payload notification.Payload) (*channel.Result, error) {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	return adapter.Send(sendCtx, rcpt, payload)
}

func (s *DispatchService) sourceClosed(ctx context.Context, msg *notification.ScheduledMessage) bool {
	if msg.SourceID == "" {
		return false
	}
	if _, ok := msg.Kind.Stage(); !ok {
		// Event kinds (completed/verified) are about the terminal
		// transition itself and must not be cancelled by it.
		return false
	}
	chore, err := s.households.GetChore(ctx, msg.SourceID)
	if err != nil {
		return err == household.ErrChoreNotFound
	}
	return !chore.Open()
}

func (s *DispatchService) requeueAt(ctx context.Context, msg *notification.ScheduledMessage, at time.Time, log *logrus.Entry) outcome {
	if err := s.messages.Requeue(ctx, msg.ID, at); err != nil {
		log.WithError(err).Error("Failed to requeue message")
	}
	return outcomeDeferred
}

func (s *DispatchService) markFailed(ctx context.Context, id, lastErr string, log *logrus.Entry) {
	if err := s.messages.MarkFailed(ctx, id, lastErr); err != nil {
		log.WithError(err).Error("Failed to mark message failed")
	}
}

func (s *DispatchService) recordDelivery(ctx context.Context, messageID string, ch notification.Channel, providerID string, status notification.DeliveryStatus, errorCode string, log *logrus.Entry) {
	rec := &notification.DeliveryRecord{
		MessageID:         messageID,
		Channel:           ch,
		ProviderMessageID: providerID,
		Status:            status,
		ErrorCode:         errorCode,
	}
	if err := s.deliveries.Record(ctx, rec); err != nil {
		log.WithError(err).Error("Failed to record delivery attempt")
	}
}

// MessageStatus returns the freshest known state for a provider message id:
// the owning adapter's provider-side status when it supports lookup,
// otherwise the locally recorded status.
func (s *DispatchService) MessageStatus(ctx context.Context, providerMessageID string) (*channel.Status, error) {
	rec, err := s.deliveries.GetByProviderID(ctx, providerMessageID)
	if err != nil {
		return nil, err
	}
	local := &channel.Status{Status: rec.Status, ErrorCode: rec.ErrorCode, Timestamp: rec.CreatedAt}

	adapter, ok := s.adapters[rec.Channel]
	if !ok {
		return local, nil
	}
	checker, ok := adapter.(channel.StatusChecker)
	if !ok {
		return local, nil
	}
	remote, err := checker.Status(ctx, providerMessageID)
	if err != nil {
		s.logger.WithError(err).WithField("provider_message_id", providerMessageID).
			Debug("Provider status lookup failed; using local record")
		return local, nil
	}
	return remote, nil
}

// DeliveryStats aggregates delivery outcomes over "hour", "day" or "week".
func (s *DispatchService) DeliveryStats(ctx context.Context, timeRange string) (*notification.DeliveryStats, error) {
	var span time.Duration
	switch timeRange {
	case "hour":
		span = time.Hour
	case "day", "":
		span = 24 * time.Hour
	case "week":
		span = 7 * 24 * time.Hour
	default:
		return nil, fmt.Errorf("unknown time range %q (want hour, day or week)", timeRange)
	}
	return s.deliveries.Stats(ctx, s.now().Add(-span))
}

// ServiceStatus snapshots per-channel configuration, queue depth and
// rate-limiter occupancy. Read-only.
func (s *DispatchService) ServiceStatus(ctx context.Context) (*ServiceStatus, error) {
	depth, err := s.messages.QueueDepthByChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depth: %w", err)
	}
	counts, err := s.messages.StatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read status counts: %w", err)
	}
	occupancy := s.limiter.Occupancy()

	status := &ServiceStatus{Queue: counts}
	for _, ch := range notification.Channels() {
		adapter, ok := s.adapters[ch]
		status.Channels = append(status.Channels, ChannelStatus{
			Channel:          ch,
			Configured:       ok && adapter.IsConfigured(),
			QueueDepth:       depth[ch],
			LimiterOccupancy: occupancy[ch],
		})
	}
	return status, nil
}

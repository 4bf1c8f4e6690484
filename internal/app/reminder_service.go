// internal/app/reminder_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"chore_notifier/internal/domain/household"
	"chore_notifier/internal/domain/notification"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReminderService runs the periodic sweep: it walks open chores, decides
// which reminder stage each chore-recipient pair is owed, and enqueues at
// most one message per (chore, recipient, stage). Idempotence under
// re-invocation rests solely on the message key, not on any external lock.
type ReminderService struct {
	households household.Repository
	messages   notification.MessageRepository
	prefs      *PreferenceService
	logger     *logrus.Logger
	now        func() time.Time
}

// SweepResult summarizes one sweep for the trigger endpoint.
type SweepResult struct {
	ChoresExamined    int `json:"choresExamined"`
	MessagesCreated   int `json:"messagesCreated"`
	MessagesCancelled int `json:"messagesCancelled"`
}

func NewReminderService(
	households household.Repository,
	messages notification.MessageRepository,
	prefs *PreferenceService,
	logger *logrus.Logger,
) *ReminderService {
	return &ReminderService{
		households: households,
		messages:   messages,
		prefs:      prefs,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the service clock; tests only.
func (s *ReminderService) SetClock(now func() time.Time) { s.now = now }

// RunSweep executes one full reminder sweep. Store-level failures abort the
// sweep and propagate; per-chore failures are logged and skipped so one bad
// record cannot starve the rest.
func (s *ReminderService) RunSweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}
	now := s.now()

	cancelled, err := s.cancelClosedChores(ctx)
	if err != nil {
		return nil, err
	}
	result.MessagesCancelled = cancelled

	chores, err := s.households.ListOpenChoresWithDueDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open chores: %w", err)
	}
	result.ChoresExamined = len(chores)

	for _, chore := range chores {
		created, err := s.sweepChore(ctx, chore, now)
		if err != nil {
			s.logger.WithError(err).WithField("chore_id", chore.ID).
				Error("Failed to process chore during sweep")
			continue
		}
		result.MessagesCreated += created
	}

	s.logger.WithFields(logrus.Fields{
		"chores":    result.ChoresExamined,
		"created":   result.MessagesCreated,
		"cancelled": result.MessagesCancelled,
	}).Info("Reminder sweep finished")
	return result, nil
}

// cancelClosedChores marks pending messages as skipped when their chore has
// gone terminal since they were enqueued. Skipped, not deleted, so the
// statistics keep the trace.
func (s *ReminderService) cancelClosedChores(ctx context.Context) (int, error) {
	sourceIDs, err := s.messages.ActiveSourceIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active message sources: %w", err)
	}

	total := 0
	for _, id := range sourceIDs {
		chore, err := s.households.GetChore(ctx, id)
		if err != nil {
			if err == household.ErrChoreNotFound {
				// Source deleted from under us; its messages can never be
				// acted on again.
				n, cerr := s.messages.CancelPendingForSource(ctx, id)
				if cerr != nil {
					return total, fmt.Errorf("failed to cancel messages for deleted chore %s: %w", id, cerr)
				}
				total += n
				continue
			}
			return total, fmt.Errorf("failed to load chore %s: %w", id, err)
		}
		if chore.Open() {
			continue
		}
		n, err := s.messages.CancelPendingForSource(ctx, id)
		if err != nil {
			return total, fmt.Errorf("failed to cancel messages for chore %s: %w", id, err)
		}
		if n > 0 {
			s.logger.WithFields(logrus.Fields{"chore_id": id, "cancelled": n}).
				Info("Cancelled pending reminders for closed chore")
		}
		total += n
	}
	return total, nil
}

func (s *ReminderService) sweepChore(ctx context.Context, chore *household.Chore, now time.Time) (int, error) {
	prefs, err := s.prefs.Get(ctx, chore.AssignedTo, chore.FamilyID)
	if err != nil {
		return 0, err
	}

	stage, due := owedStage(prefs.ReminderTiming, chore.DueDate, now)
	if stage == "" {
		return 0, nil
	}
	kind := stage.Kind()
	if !prefs.Enabled[kind] {
		return 0, nil
	}

	msg := &notification.ScheduledMessage{
		ID:          uuid.NewString(),
		SourceID:    chore.ID,
		RecipientID: chore.AssignedTo,
		FamilyID:    chore.FamilyID,
		Kind:        kind,
		Channels:    prefs.ChannelOrder(),
		Payload:     reminderPayload(chore, stage, now),
		ScheduledAt: due,
	}
	if err := s.messages.Enqueue(ctx, msg); err != nil {
		if err == notification.ErrDuplicateMessage {
			// This stage was already enqueued for the current cycle. The key
			// constraint is the only dedup guard; a stale terminal entry from
			// an earlier cycle is replaced inside Enqueue instead.
			return 0, nil
		}
		return 0, fmt.Errorf("failed to enqueue %s reminder for chore %s: %w", stage, chore.ID, err)
	}
	s.logger.WithFields(logrus.Fields{
		"chore_id":  chore.ID,
		"recipient": chore.AssignedTo,
		"stage":     stage,
	}).Info("Reminder enqueued")
	return 1, nil
}

// EnqueueEvent schedules a status-change notification (chore completed or
// verified) for one recipient, subject to the same idempotency key as
// reminders and to the recipient's enabled-kinds map. It reports whether a
// message was actually created.
func (s *ReminderService) EnqueueEvent(ctx context.Context, chore *household.Chore, recipientID string, kind notification.Kind) (bool, error) {
	prefs, err := s.prefs.Get(ctx, recipientID, chore.FamilyID)
	if err != nil {
		return false, err
	}
	if !prefs.Enabled[kind] {
		return false, nil
	}

	msg := &notification.ScheduledMessage{
		ID:          uuid.NewString(),
		SourceID:    chore.ID,
		RecipientID: recipientID,
		FamilyID:    chore.FamilyID,
		Kind:        kind,
		Channels:    prefs.ChannelOrder(),
		Payload:     eventPayload(chore, kind),
		ScheduledAt: s.now(),
	}
	if err := s.messages.Enqueue(ctx, msg); err != nil {
		if err == notification.ErrDuplicateMessage {
			return false, nil
		}
		return false, fmt.Errorf("failed to enqueue %s event for chore %s: %w", kind, chore.ID, err)
	}
	return true, nil
}

// BroadcastEvent fans a status-change notification out to every member of
// the chore's family except the assignee, who triggered the change and does
// not need to hear about it. Returns how many messages were enqueued.
func (s *ReminderService) BroadcastEvent(ctx context.Context, choreID string, kind notification.Kind) (int, error) {
	chore, err := s.households.GetChore(ctx, choreID)
	if err != nil {
		return 0, err
	}
	members, err := s.households.ListFamilyMembers(ctx, chore.FamilyID)
	if err != nil {
		return 0, fmt.Errorf("failed to list members of family %s: %w", chore.FamilyID, err)
	}

	created := 0
	for _, m := range members {
		if m.ID == chore.AssignedTo {
			continue
		}
		ok, err := s.EnqueueEvent(ctx, chore, m.ID, kind)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	if created > 0 {
		s.logger.WithFields(logrus.Fields{
			"chore_id": choreID,
			"kind":     kind,
			"enqueued": created,
		}).Info("Status-change notification enqueued for family")
	}
	return created, nil
}

// Stats returns counts by stage and status, optionally scoped to one
// family. Pure read, no side effects.
func (s *ReminderService) Stats(ctx context.Context, familyID string) ([]notification.StageStatusCount, error) {
	return s.messages.ReminderStats(ctx, familyID)
}

// owedStage decides which reminder stage, if any, a chore-recipient pair is
// owed at the given instant. When the scheduler was down long enough for
// several thresholds to pass, only the most advanced crossed stage is owed;
// earlier ones are considered superseded.
func owedStage(t notification.ReminderTiming, dueDate, now time.Time) (notification.Stage, time.Time) {
	finalAt := dueDate.Add(-time.Duration(t.FinalReminderHours) * time.Hour)
	secondAt := dueDate.Add(-time.Duration(t.SecondReminderDays) * 24 * time.Hour)
	firstAt := dueDate.Add(-time.Duration(t.FirstReminderDays) * 24 * time.Hour)

	switch {
	case !now.Before(finalAt):
		return notification.StageFinal, finalAt
	case !now.Before(secondAt):
		return notification.StageSecond, secondAt
	case !now.Before(firstAt):
		return notification.StageFirst, firstAt
	}
	return "", time.Time{}
}

func reminderPayload(chore *household.Chore, stage notification.Stage, now time.Time) notification.Payload {
	var lead string
	switch stage {
	case notification.StageFirst:
		lead = "Heads up"
	case notification.StageSecond:
		lead = "Reminder"
	case notification.StageFinal:
		if now.After(chore.DueDate) {
			lead = "Overdue"
		} else {
			lead = "Last call"
		}
	}
	return notification.Payload{
		Subject: fmt.Sprintf("%s: %s", lead, chore.Title),
		Body: fmt.Sprintf("%s: %q is due %s.", lead, chore.Title,
			chore.DueDate.Format("Mon, Jan 2 at 15:04")),
	}
}

func eventPayload(chore *household.Chore, kind notification.Kind) notification.Payload {
	switch kind {
	case notification.KindChoreCompleted:
		return notification.Payload{
			Subject: fmt.Sprintf("Done: %s", chore.Title),
			Body:    fmt.Sprintf("%q was marked completed and is waiting for verification.", chore.Title),
		}
	case notification.KindChoreVerified:
		return notification.Payload{
			Subject: fmt.Sprintf("Verified: %s", chore.Title),
			Body:    fmt.Sprintf("%q was verified. Nice work!", chore.Title),
		}
	}
	return notification.Payload{Subject: chore.Title, Body: chore.Title}
}

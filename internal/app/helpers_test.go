package app

import (
	"context"
	"io"
	"time"

	"chore_notifier/internal/domain/channel"
	"chore_notifier/internal/domain/household"
	"chore_notifier/internal/domain/notification"
	"chore_notifier/internal/infra/memstore"
	"chore_notifier/internal/infra/ratelimit"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeAdapter is a scripted carrier for dispatcher tests.
type fakeAdapter struct {
	kind       notification.Channel
	configured bool
	err        error
	providerID string
	calls      int
}

func (f *fakeAdapter) Kind() notification.Channel { return f.kind }
func (f *fakeAdapter) IsConfigured() bool         { return f.configured }

func (f *fakeAdapter) Send(_ context.Context, _ *household.User, _ notification.Payload) (*channel.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &channel.Result{ProviderMessageID: f.providerID}, nil
}

// dispatchEnv wires a DispatchService onto in-memory stores with one open
// chore ("c1") assigned to one user ("u1").
type dispatchEnv struct {
	now      time.Time
	msgs     *memstore.MessageStore
	dels     *memstore.DeliveryStore
	houses   *memstore.HouseholdStore
	prefSvc  *PreferenceService
	limiter  *ratelimit.Limiter
	chat     *fakeAdapter
	sms      *fakeAdapter
	email    *fakeAdapter
	dispatch *DispatchService
}

func newDispatchEnv(rateLimitMax int) *dispatchEnv {
	e := &dispatchEnv{
		now:    time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		msgs:   memstore.NewMessageStore(12 * time.Hour),
		dels:   memstore.NewDeliveryStore(),
		houses: memstore.NewHouseholdStore(),
		chat:   &fakeAdapter{kind: notification.ChannelChat, configured: true, providerID: "chat-1"},
		sms:    &fakeAdapter{kind: notification.ChannelSMS, configured: true, providerID: "sms-1"},
		email:  &fakeAdapter{kind: notification.ChannelEmail, configured: true, providerID: "email-1"},
	}
	e.dels.SetClock(func() time.Time { return e.now })
	e.limiter = ratelimit.NewWithClock(time.Hour, rateLimitMax, func() time.Time { return e.now })
	log := testLogger()
	e.prefSvc = NewPreferenceService(memstore.NewPreferenceStore(), log)
	e.dispatch = NewDispatchService(
		e.msgs, e.dels, e.houses, e.prefSvc, e.limiter,
		[]channel.Adapter{e.chat, e.sms, e.email}, time.Second, log)
	e.dispatch.SetClock(func() time.Time { return e.now })

	e.houses.PutUser(&household.User{ID: "u1", FamilyID: "f1", FirstName: "Sam", ChatID: 7, Phone: "+15550001", Email: "sam@example.com"})
	e.houses.PutChore(&household.Chore{
		ID: "c1", FamilyID: "f1", Title: "Dishes", AssignedTo: "u1",
		DueDate: e.now.Add(24 * time.Hour), Status: household.ChoreStatusPending,
	})
	return e
}

// enqueueDue puts one due reminder for u1/c1 into the queue.
func (e *dispatchEnv) enqueueDue(ctx context.Context, id string) *notification.ScheduledMessage {
	msg := &notification.ScheduledMessage{
		ID:          id,
		SourceID:    "c1",
		RecipientID: "u1",
		FamilyID:    "f1",
		Kind:        notification.KindReminderFirst,
		Channels:    []notification.Channel{notification.ChannelChat, notification.ChannelSMS, notification.ChannelEmail},
		Payload:     notification.Payload{Subject: "Heads up: Dishes", Body: "due soon"},
		ScheduledAt: e.now,
	}
	if err := e.msgs.Enqueue(ctx, msg); err != nil {
		panic(err)
	}
	return msg
}

package scheduler

import (
	"context"
	"time"

	"chore_notifier/internal/app"
	"chore_notifier/internal/domain/notification"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// EngineScheduler drives the engine's three recurring jobs: the reminder
// sweep, the due-message dispatch drain and the terminal-message prune.
// Sweep and dispatch are independent; the cron engine may trigger either
// again before the previous run finished, and the stores' compare-and-set
// transitions keep the overlap safe.
type EngineScheduler struct {
	cronEngine *cron.Cron
	reminders  *app.ReminderService
	dispatch   *app.DispatchService
	messages   notification.MessageRepository
	logger     *logrus.Logger

	cronSpecSweep    string
	cronSpecDispatch string
	cronSpecPrune    string
	batchSize        int
	retention        time.Duration
}

func NewEngineScheduler(
	reminders *app.ReminderService,
	dispatch *app.DispatchService,
	messages notification.MessageRepository,
	logger *logrus.Logger,
	cronSpecSweep, cronSpecDispatch, cronSpecPrune string,
	batchSize int,
	retention time.Duration,
) *EngineScheduler {
	return &EngineScheduler{
		cronEngine:       cron.New(cron.WithLocation(time.UTC)),
		reminders:        reminders,
		dispatch:         dispatch,
		messages:         messages,
		logger:           logger,
		cronSpecSweep:    cronSpecSweep,
		cronSpecDispatch: cronSpecDispatch,
		cronSpecPrune:    cronSpecPrune,
		batchSize:        batchSize,
		retention:        retention,
	}
}

func (s *EngineScheduler) Start() {
	s.logger.Info("Starting notification scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpecSweep, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.reminders.RunSweep(ctx); err != nil {
			s.logger.WithError(err).Error("Reminder sweep failed")
		}
	})
	if err != nil {
		s.logger.WithError(err).Fatal("Could not add reminder sweep cron job")
	}

	_, err = s.cronEngine.AddFunc(s.cronSpecDispatch, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.dispatch.DispatchDue(ctx, s.batchSize); err != nil {
			s.logger.WithError(err).Error("Dispatch cycle failed")
		}
	})
	if err != nil {
		s.logger.WithError(err).Fatal("Could not add dispatch cron job")
	}

	_, err = s.cronEngine.AddFunc(s.cronSpecPrune, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := s.messages.PruneTerminal(ctx, time.Now().Add(-s.retention))
		if err != nil {
			s.logger.WithError(err).Error("Retention prune failed")
			return
		}
		if n > 0 {
			s.logger.WithField("pruned", n).Info("Pruned terminal messages past retention")
		}
	})
	if err != nil {
		s.logger.WithError(err).Fatal("Could not add retention prune cron job")
	}

	s.cronEngine.Start()
	s.logger.Info("Notification scheduler started with jobs.")
}

func (s *EngineScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop() // Waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Notification scheduler gracefully stopped.")
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chore_notifier/internal/app"
	"chore_notifier/internal/domain/channel"
	"chore_notifier/internal/domain/household"
	"chore_notifier/internal/domain/notification"
	"chore_notifier/internal/infra/config"
	idb "chore_notifier/internal/infra/database"
	"chore_notifier/internal/infra/email"
	"chore_notifier/internal/infra/httpapi"
	"chore_notifier/internal/infra/logger"
	"chore_notifier/internal/infra/memstore"
	"chore_notifier/internal/infra/ratelimit"
	"chore_notifier/internal/infra/scheduler"
	"chore_notifier/internal/infra/sms"
	"chore_notifier/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	log := logger.Get()
	log.Infof("Chore notification engine starting. Environment: %s", cfg.Environment)

	// Repositories: Postgres when a DSN is configured, in-memory otherwise.
	var (
		messageRepo  notification.MessageRepository
		deliveryRepo notification.DeliveryRepository
		prefRepo     notification.PreferenceRepository
		houseRepo    household.Repository
	)
	if cfg.DatabaseURL != "" {
		db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("FATAL: Could not connect to database: %v", err)
		}
		defer db.Close()
		log.Info("Database connection established successfully.")

		messageRepo = idb.NewPostgresMessageRepository(db, cfg.RecycleInterval)
		deliveryRepo = idb.NewPostgresDeliveryRepository(db)
		prefRepo = idb.NewPostgresPreferenceRepository(db)
		houseRepo = idb.NewPostgresHouseholdRepository(db)
	} else {
		log.Warn("DATABASE_URL not set; using in-memory stores (state is lost on restart)")
		messageRepo = memstore.NewMessageStore(cfg.RecycleInterval)
		deliveryRepo = memstore.NewDeliveryStore()
		prefRepo = memstore.NewPreferenceStore()
		houseRepo = memstore.NewHouseholdStore()
	}

	// Channel adapters. A missing credential disables that channel only.
	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		bot, err = telebot.NewBot(telebot.Settings{Token: cfg.TelegramToken})
		if err != nil {
			log.Errorf("Could not create Telegram bot, chat channel disabled: %v", err)
			bot = nil
		}
	}
	adapters := []channel.Adapter{
		telegram.NewAdapter(bot),
		sms.NewAdapter(cfg.SMSAPIBaseURL, cfg.SMSAccountSID, cfg.SMSAuthToken, cfg.SMSFromNumber, cfg.SendTimeout),
		email.NewAdapter(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SendTimeout),
	}
	for _, a := range adapters {
		log.Infof("Channel %s configured: %v", a.Kind(), a.IsConfigured())
	}

	limiter := ratelimit.New(cfg.RateLimitWindow, cfg.RateLimitMax)

	prefService := app.NewPreferenceService(prefRepo, log)
	reminderService := app.NewReminderService(houseRepo, messageRepo, prefService, log)
	dispatchService := app.NewDispatchService(
		messageRepo, deliveryRepo, houseRepo, prefService, limiter, adapters, cfg.SendTimeout, log)

	engineScheduler := scheduler.NewEngineScheduler(
		reminderService, dispatchService, messageRepo, log,
		cfg.CronSpecSweep, cfg.CronSpecDispatch, cfg.CronSpecPrune,
		cfg.DispatchBatchSize, cfg.MessageRetention)
	engineScheduler.Start()

	apiServer := httpapi.NewServer(
		reminderService, dispatchService, prefService, messageRepo,
		cfg.TriggerSecret, cfg.DispatchBatchSize, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("HTTP API listening on %s", cfg.HTTPListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: HTTP server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
	}
	engineScheduler.Stop()
	log.Info("Application shut down gracefully.")
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the notification engine.
type AppConfig struct {
	DatabaseURL    string // empty selects the in-memory stores (dev/test)
	HTTPListenAddr string
	TriggerSecret  string

	LogLevel    string
	Environment string

	// Channel credentials. Any of these may be absent; the corresponding
	// channel is then reported as unconfigured and skipped at dispatch.
	TelegramToken string
	SMSAPIBaseURL string
	SMSAccountSID string
	SMSAuthToken  string
	SMSFromNumber string
	SMTPHost      string
	SMTPPort      int
	SMTPFrom      string
	SMTPUsername  string
	SMTPPassword  string

	SendTimeout       time.Duration
	RateLimitWindow   time.Duration
	RateLimitMax      int
	DispatchBatchSize int
	MessageRetention  time.Duration // terminal messages older than this are pruned
	RecycleInterval   time.Duration // minimum gap before a terminal key may be reused

	CronSpecSweep    string
	CronSpecDispatch string
	CronSpecPrune    string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.TriggerSecret = os.Getenv("TRIGGER_SHARED_SECRET")
	if cfg.TriggerSecret == "" {
		return nil, fmt.Errorf("TRIGGER_SHARED_SECRET is not set")
	}

	cfg.HTTPListenAddr = getEnv("HTTP_LISTEN_ADDR", ":8080")

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.SMSAPIBaseURL = os.Getenv("SMS_API_BASE_URL")
	cfg.SMSAccountSID = os.Getenv("SMS_ACCOUNT_SID")
	cfg.SMSAuthToken = os.Getenv("SMS_AUTH_TOKEN")
	cfg.SMSFromNumber = os.Getenv("SMS_FROM_NUMBER")
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")

	var err error
	if cfg.SMTPPort, err = intEnv("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = durationEnv("SEND_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = durationEnv("RATE_LIMIT_WINDOW", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = intEnv("RATE_LIMIT_MAX", 10); err != nil {
		return nil, err
	}
	if cfg.DispatchBatchSize, err = intEnv("DISPATCH_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.MessageRetention, err = durationEnv("MESSAGE_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RecycleInterval, err = durationEnv("RECYCLE_INTERVAL", 12*time.Hour); err != nil {
		return nil, err
	}

	cfg.CronSpecSweep = getEnv("CRON_SPEC_SWEEP", "*/10 * * * *")
	cfg.CronSpecDispatch = getEnv("CRON_SPEC_DISPATCH", "* * * * *")
	cfg.CronSpecPrune = getEnv("CRON_SPEC_PRUNE", "0 4 * * *")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

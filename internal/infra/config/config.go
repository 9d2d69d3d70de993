package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"evaluation_reminders/internal/domain/reminder"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	MailBackendConsole  = "console"
	MailBackendSendGrid = "sendgrid"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	LogLevel    string
	Environment string

	// Reminder policy
	ResponseRateThreshold  reminder.Percent
	ReminderFrequency      time.Duration
	MaxRemindersPerStudent int
	BatchChunkSize         int
	SendTimeout            time.Duration
	SendConcurrency        int
	StaleRunningAfter      time.Duration
	MetricsCacheTTL        time.Duration
	ClosingReminderDays    int

	CronSpecReminders        string
	CronSpecClosingReminders string

	// Mail
	MailBackend     string
	SendGridAPIKey  string
	MailFromAddress string
	MailFromName    string
	SiteURL         string

	// Operator bot; disabled when TelegramToken is empty.
	TelegramToken      string
	OperatorTelegramID int64

	HTTPAddr string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("RESPONSE_RATE_THRESHOLD_PERCENT", "10")
	v.SetDefault("REMINDER_FREQUENCY_HOURS", "24")
	v.SetDefault("MAX_REMINDERS_PER_STUDENT", "3")
	v.SetDefault("BATCH_CHUNK_SIZE", "200")
	v.SetDefault("SEND_TIMEOUT", "15s")
	v.SetDefault("SEND_CONCURRENCY", "1")
	v.SetDefault("STALE_RUNNING_AFTER", "30m")
	v.SetDefault("METRICS_CACHE_TTL", "15m")
	v.SetDefault("CLOSING_REMINDER_DAYS", "2")
	v.SetDefault("CRON_SPEC_REMINDERS", "0 * * * *")         // hourly
	v.SetDefault("CRON_SPEC_CLOSING_REMINDERS", "0 9 * * *") // 9 AM daily
	v.SetDefault("MAIL_BACKEND", MailBackendConsole)
	v.SetDefault("MAIL_FROM_ADDRESS", "noreply@localhost")
	v.SetDefault("MAIL_FROM_NAME", "Avaliação Docente")
	v.SetDefault("SITE_URL", "http://localhost:8000")
	v.SetDefault("OPERATOR_TELEGRAM_ID", "0")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.AutomaticEnv()
	return v
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Errors are ignored if the file doesn't exist; existing env vars win.
	_ = godotenv.Load()
	return fromViper(newViper())
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = v.GetString("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	cfg.LogLevel = strings.ToLower(v.GetString("LOG_LEVEL"))
	cfg.Environment = strings.ToLower(v.GetString("ENVIRONMENT"))

	cfg.ResponseRateThreshold, err = reminder.ParsePercent(v.GetString("RESPONSE_RATE_THRESHOLD_PERCENT"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESPONSE_RATE_THRESHOLD_PERCENT: %w", err)
	}
	if cfg.ResponseRateThreshold < 0 || cfg.ResponseRateThreshold > 10000 {
		return nil, fmt.Errorf("RESPONSE_RATE_THRESHOLD_PERCENT must be between 0 and 100, got %s", cfg.ResponseRateThreshold)
	}

	hours, err := positiveInt(v, "REMINDER_FREQUENCY_HOURS")
	if err != nil {
		return nil, err
	}
	cfg.ReminderFrequency = time.Duration(hours) * time.Hour

	if cfg.MaxRemindersPerStudent, err = positiveInt(v, "MAX_REMINDERS_PER_STUDENT"); err != nil {
		return nil, err
	}
	if cfg.BatchChunkSize, err = positiveInt(v, "BATCH_CHUNK_SIZE"); err != nil {
		return nil, err
	}
	if cfg.SendConcurrency, err = positiveInt(v, "SEND_CONCURRENCY"); err != nil {
		return nil, err
	}
	if cfg.ClosingReminderDays, err = positiveInt(v, "CLOSING_REMINDER_DAYS"); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = positiveDuration(v, "SEND_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.StaleRunningAfter, err = positiveDuration(v, "STALE_RUNNING_AFTER"); err != nil {
		return nil, err
	}
	if cfg.MetricsCacheTTL, err = positiveDuration(v, "METRICS_CACHE_TTL"); err != nil {
		return nil, err
	}

	cfg.CronSpecReminders = v.GetString("CRON_SPEC_REMINDERS")
	cfg.CronSpecClosingReminders = v.GetString("CRON_SPEC_CLOSING_REMINDERS")

	cfg.MailBackend = strings.ToLower(v.GetString("MAIL_BACKEND"))
	cfg.SendGridAPIKey = v.GetString("SENDGRID_API_KEY")
	switch cfg.MailBackend {
	case MailBackendConsole:
	case MailBackendSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("SENDGRID_API_KEY is required when MAIL_BACKEND=%s", MailBackendSendGrid)
		}
	default:
		return nil, fmt.Errorf("unknown MAIL_BACKEND %q", cfg.MailBackend)
	}
	cfg.MailFromAddress = v.GetString("MAIL_FROM_ADDRESS")
	cfg.MailFromName = v.GetString("MAIL_FROM_NAME")
	cfg.SiteURL = v.GetString("SITE_URL")

	cfg.TelegramToken = v.GetString("TELEGRAM_TOKEN")
	cfg.OperatorTelegramID, err = strconv.ParseInt(v.GetString("OPERATOR_TELEGRAM_ID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OPERATOR_TELEGRAM_ID: %w", err)
	}
	if cfg.TelegramToken != "" && cfg.OperatorTelegramID == 0 {
		return nil, fmt.Errorf("OPERATOR_TELEGRAM_ID is required when TELEGRAM_TOKEN is set")
	}

	cfg.HTTPAddr = v.GetString("HTTP_ADDR")
	return cfg, nil
}

func positiveInt(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func positiveDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

// TelegramEnabled reports whether the operator bot should start.
func (c *AppConfig) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

package config

import (
	"testing"
	"time"

	"evaluation_reminders/internal/domain/reminder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/reminders?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, reminder.Percent(1000), cfg.ResponseRateThreshold)
	assert.Equal(t, 24*time.Hour, cfg.ReminderFrequency)
	assert.Equal(t, 3, cfg.MaxRemindersPerStudent)
	assert.Equal(t, 200, cfg.BatchChunkSize)
	assert.Equal(t, 15*time.Second, cfg.SendTimeout)
	assert.Equal(t, 1, cfg.SendConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.StaleRunningAfter)
	assert.Equal(t, 2, cfg.ClosingReminderDays)
	assert.Equal(t, MailBackendConsole, cfg.MailBackend)
	assert.Equal(t, "0 * * * *", cfg.CronSpecReminders)
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/reminders")
	t.Setenv("RESPONSE_RATE_THRESHOLD_PERCENT", "12.5")
	t.Setenv("REMINDER_FREQUENCY_HOURS", "48")
	t.Setenv("SEND_CONCURRENCY", "4")
	t.Setenv("MAIL_BACKEND", "SendGrid")
	t.Setenv("SENDGRID_API_KEY", "SG.key")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("OPERATOR_TELEGRAM_ID", "555")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, reminder.Percent(1250), cfg.ResponseRateThreshold)
	assert.Equal(t, 48*time.Hour, cfg.ReminderFrequency)
	assert.Equal(t, 4, cfg.SendConcurrency)
	assert.Equal(t, MailBackendSendGrid, cfg.MailBackend)
	assert.Equal(t, int64(555), cfg.OperatorTelegramID)
	assert.True(t, cfg.TelegramEnabled())
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing database url": {"DATABASE_URL": ""},
		"bad threshold":        {"RESPONSE_RATE_THRESHOLD_PERCENT": "ten"},
		"threshold over 100":   {"RESPONSE_RATE_THRESHOLD_PERCENT": "100.01"},
		"zero frequency":       {"REMINDER_FREQUENCY_HOURS": "0"},
		"bad send timeout":     {"SEND_TIMEOUT": "soon"},
		"sendgrid without key": {"MAIL_BACKEND": "sendgrid", "SENDGRID_API_KEY": ""},
		"unknown mail backend": {"MAIL_BACKEND": "carrier-pigeon"},
		"bot without operator": {"TELEGRAM_TOKEN": "123:abc", "OPERATOR_TELEGRAM_ID": "0"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://db/reminders")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

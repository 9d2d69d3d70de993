package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"evaluation_reminders/internal/app"
	domainmail "evaluation_reminders/internal/domain/mail"
	"evaluation_reminders/internal/infra/cache"
	"evaluation_reminders/internal/infra/config"
	"evaluation_reminders/internal/infra/database"
	"evaluation_reminders/internal/infra/logger"
	"evaluation_reminders/internal/infra/mail"
)

// application holds the wired services shared by every command.
type application struct {
	cfg *config.AppConfig
	db  *sql.DB

	reminderRepo *database.PostgresReminderRepository
	evalRepo     *database.PostgresEvaluationRepository
	cache        *cache.MemoryCache

	reminders *app.ReminderServiceImpl
	admin     *app.AdminService
	metrics   *app.MetricsService
	responses *app.ResponseService
	closing   *app.ClosingReminderService
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	return cfg, nil
}

func openDatabase(ctx context.Context, cfg *config.AppConfig) (*sql.DB, error) {
	db, err := database.NewPostgresConnection(ctx, cfg.DatabaseURL, database.PoolConfig{})
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	logger.Log.Info("Database connection established successfully.")
	return db, nil
}

func newSender(cfg *config.AppConfig) domainmail.Sender {
	switch cfg.MailBackend {
	case config.MailBackendSendGrid:
		return mail.NewSendGridSender(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFromAddress)
	default:
		return mail.NewConsoleSender(logger.Component("mail"))
	}
}

func bootstrap(ctx context.Context) (*application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &application{
		cfg:          cfg,
		db:           db,
		reminderRepo: database.NewPostgresReminderRepository(db),
		evalRepo:     database.NewPostgresEvaluationRepository(db),
		cache:        cache.NewMemoryCache(cfg.MetricsCacheTTL),
	}
	sender := newSender(cfg)
	base := logger.Log.WithField("environment", cfg.Environment)

	a.reminders = app.NewReminderServiceImpl(a.reminderRepo, a.evalRepo, sender, app.ReminderConfig{
		Threshold:              cfg.ResponseRateThreshold,
		Frequency:              cfg.ReminderFrequency,
		MaxRemindersPerStudent: cfg.MaxRemindersPerStudent,
		ChunkSize:              cfg.BatchChunkSize,
		SendTimeout:            cfg.SendTimeout,
		SendConcurrency:        cfg.SendConcurrency,
		StaleRunningAfter:      cfg.StaleRunningAfter,
		SiteURL:                cfg.SiteURL,
	}, base)
	a.admin = app.NewAdminService(a.evalRepo, a.reminderRepo, cfg.ReminderFrequency, base)
	a.metrics = app.NewMetricsService(a.evalRepo, a.cache, cfg.MetricsCacheTTL, base)
	a.responses = app.NewResponseService(a.evalRepo, a.metrics, base)
	a.closing = app.NewClosingReminderService(a.evalRepo, sender, cfg.ClosingReminderDays, cfg.SiteURL, cfg.SendTimeout, base)
	return a, nil
}

func (a *application) Close() {
	if err := a.db.Close(); err != nil {
		logger.Log.WithError(err).Warn("Error closing database")
	}
}

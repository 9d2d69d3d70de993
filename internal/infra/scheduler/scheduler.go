package scheduler

import (
	"context"
	"fmt"
	"time"

	"evaluation_reminders/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	batchTimeout   = 30 * time.Minute
	closingTimeout = 10 * time.Minute
)

// ClosingRunner is satisfied by *app.ClosingReminderService.
type ClosingRunner interface {
	Run(ctx context.Context, dryRun bool) (*app.ClosingSummary, error)
}

// RunObserver receives the outcome of every scheduled run (metrics, operator chat).
type RunObserver interface {
	ObserveBatch(summary *app.RunSummary, runErr error)
	ObserveClosing(summary *app.ClosingSummary)
}

type ReminderScheduler struct {
	cronEngine      *cron.Cron
	reminderService app.ReminderService
	closingRunner   ClosingRunner
	observers       []RunObserver
	logger          *logrus.Entry
	cronSpecBatch   string
	cronSpecClosing string
}

func NewReminderScheduler(
	reminderService app.ReminderService,
	closingRunner ClosingRunner,
	logger *logrus.Entry,
	cronSpecBatch string, // e.g., "0 * * * *" (hourly)
	cronSpecClosing string, // e.g., "0 9 * * *" (9 AM daily)
	observers ...RunObserver,
) *ReminderScheduler {
	entry := logger.WithField("component", "scheduler")
	return &ReminderScheduler{
		// Overlapping triggers are dropped; the running pass keeps its claim.
		cronEngine: cron.New(
			cron.WithLocation(time.Local),
			cron.WithChain(cron.Recover(cron.PrintfLogger(entry)), cron.SkipIfStillRunning(cron.PrintfLogger(entry))),
		),
		reminderService: reminderService,
		closingRunner:   closingRunner,
		observers:       observers,
		logger:          entry,
		cronSpecBatch:   cronSpecBatch,
		cronSpecClosing: cronSpecClosing,
	}
}

// Start registers the triggers and starts the cron engine. A nil closing
// runner or an empty spec disables that trigger.
func (s *ReminderScheduler) Start() error {
	s.logger.Info("Starting reminder scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpecBatch, func() {
		s.logger.Info("Cron job triggered for reminder batch.")
		s.RunBatch(context.Background())
	}); err != nil {
		return fmt.Errorf("could not add reminder batch cron job %q: %w", s.cronSpecBatch, err)
	}

	if s.closingRunner != nil && s.cronSpecClosing != "" {
		if _, err := s.cronEngine.AddFunc(s.cronSpecClosing, func() {
			s.logger.Info("Cron job triggered for closing reminders.")
			s.RunClosing(context.Background())
		}); err != nil {
			return fmt.Errorf("could not add closing reminder cron job %q: %w", s.cronSpecClosing, err)
		}
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"batch_spec":   s.cronSpecBatch,
		"closing_spec": s.cronSpecClosing,
	}).Info("Reminder scheduler started with jobs.")
	return nil
}

// RunBatch performs one scheduled (non-forced, live) batch and notifies observers.
func (s *ReminderScheduler) RunBatch(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, batchTimeout)
	defer cancel()

	summary, err := s.reminderService.RunBatch(ctx, app.RunOptions{})
	if err != nil {
		s.logger.WithError(err).Error("Error during reminder batch")
	}
	for _, o := range s.observers {
		o.ObserveBatch(summary, err)
	}
}

// RunClosing performs one closing-soon reminder run and notifies observers.
func (s *ReminderScheduler) RunClosing(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, closingTimeout)
	defer cancel()

	summary, err := s.closingRunner.Run(ctx, false)
	if err != nil {
		s.logger.WithError(err).Error("Error during closing reminders")
		return
	}
	for _, o := range s.observers {
		o.ObserveClosing(summary)
	}
}

func (s *ReminderScheduler) Stop() {
	s.logger.Info("Stopping reminder scheduler...")
	ctx := s.cronEngine.Stop() // waits for running jobs
	<-ctx.Done()
	s.logger.Info("Reminder scheduler gracefully stopped.")
}

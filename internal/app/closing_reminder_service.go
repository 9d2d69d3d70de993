package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"evaluation_reminders/internal/domain/evaluation"
	"evaluation_reminders/internal/domain/mail"

	"github.com/sirupsen/logrus"
)

// ClosingSummary is the result of one closing-soon reminder run.
type ClosingSummary struct {
	CyclesFound   int        `json:"cycles_found"`
	CyclesSkipped int        `json:"cycles_skipped"`
	EmailsSent    int        `json:"emails_sent"`
	EmailsFailed  int        `json:"emails_failed"`
	NoEmail       int        `json:"no_email"`
	WouldSend     int        `json:"would_send"`
	DryRun        bool       `json:"dry_run"`
	Errors        []JobError `json:"errors,omitempty"`
}

// ClosingReminderKind identifies the closing reminder sent daysBefore days ahead.
func ClosingReminderKind(daysBefore int) string {
	return fmt.Sprintf("DAYS_BEFORE_%d", daysBefore)
}

// ClosingReminderService e-mails students who have not answered a cycle that
// closes in a fixed number of days. Each cycle is reminded at most once.
type ClosingReminderService struct {
	evalRepo    evaluation.Repository
	sender      mail.Sender
	daysBefore  int
	siteURL     string
	sendTimeout time.Duration
	logger      *logrus.Entry
	now         func() time.Time
}

func NewClosingReminderService(er evaluation.Repository, sender mail.Sender, daysBefore int, siteURL string, sendTimeout time.Duration, logger *logrus.Entry) *ClosingReminderService {
	return &ClosingReminderService{
		evalRepo:    er,
		sender:      sender,
		daysBefore:  daysBefore,
		siteURL:     siteURL,
		sendTimeout: sendTimeout,
		logger:      logger.WithField("component", "closing_reminder_service"),
		now:         time.Now,
	}
}

func (s *ClosingReminderService) Run(ctx context.Context, dryRun bool) (*ClosingSummary, error) {
	summary := &ClosingSummary{DryRun: dryRun}
	kind := ClosingReminderKind(s.daysBefore)
	target := evaluation.DateOnly(s.now()).AddDate(0, 0, s.daysBefore)

	logEntry := s.logger.WithFields(logrus.Fields{"target_date": target.Format("2006-01-02"), "dry_run": dryRun})
	cycles, err := s.evalRepo.ListOpenCyclesEndingOn(ctx, target)
	if err != nil {
		return summary, fmt.Errorf("failed to list cycles ending on %s: %w", target.Format("2006-01-02"), err)
	}
	summary.CyclesFound = len(cycles)
	logEntry.WithField("cycles", len(cycles)).Info("Checking cycles closing soon")

	for _, cycle := range cycles {
		if err := s.remindCycle(ctx, cycle, kind, dryRun, summary); err != nil {
			logEntry.WithError(err).WithField("cycle_id", cycle.ID).Error("Failed to send closing reminders for cycle")
			summary.Errors = append(summary.Errors, JobError{Message: fmt.Sprintf("cycle %d: %v", cycle.ID, err)})
		}
	}

	logEntry.WithFields(logrus.Fields{
		"emails_sent":   summary.EmailsSent,
		"emails_failed": summary.EmailsFailed,
		"no_email":      summary.NoEmail,
		"would_send":    summary.WouldSend,
	}).Info("Closing reminders finished")
	return summary, nil
}

func (s *ClosingReminderService) remindCycle(ctx context.Context, cycle *evaluation.Cycle, kind string, dryRun bool, summary *ClosingSummary) error {
	logEntry := s.logger.WithField("cycle_id", cycle.ID)

	done, err := s.evalRepo.HasClosingReminder(ctx, cycle.ID, kind)
	if err != nil {
		return fmt.Errorf("failed to check closing reminder: %w", err)
	}
	if done {
		logEntry.Info("Closing reminder already sent for cycle")
		summary.CyclesSkipped++
		return nil
	}

	pending, err := s.pendingStudents(ctx, cycle.ID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		logEntry.Info("Every student of the cycle has answered")
		return nil
	}

	sent, failed := 0, 0
	for _, st := range pending {
		if st.Email == "" {
			logEntry.WithField("student_id", st.ID).Warn("Student has no e-mail address")
			summary.NoEmail++
			continue
		}
		if dryRun {
			logEntry.WithFields(logrus.Fields{"student_id": st.ID, "email": st.Email}).Info("[DRY RUN] Would send closing reminder")
			summary.WouldSend++
			continue
		}

		msg, err := buildClosingMessage(s.siteURL, st, cycle, s.daysBefore)
		if err != nil {
			return err
		}
		if err := s.send(ctx, msg); err != nil {
			logEntry.WithError(err).WithField("student_id", st.ID).Warn("Failed to send closing reminder")
			failed++
			continue
		}
		sent++
	}
	summary.EmailsSent += sent
	summary.EmailsFailed += failed

	if dryRun || sent == 0 {
		return nil
	}
	// Recorded only when the whole cycle went out, so a later run reaches the
	// students whose send failed.
	if failed > 0 {
		logEntry.WithField("emails_failed", failed).Warn("Closing reminder not recorded; cycle will be retried")
		return nil
	}
	if err := s.evalRepo.RecordClosingReminder(ctx, cycle.ID, kind, sent); err != nil {
		return fmt.Errorf("failed to record closing reminder: %w", err)
	}
	return nil
}

func (s *ClosingReminderService) send(ctx context.Context, msg mail.Message) error {
	if s.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.sendTimeout)
		defer cancel()
	}
	_, err := s.sender.Send(ctx, msg)
	return err
}

// pendingStudents returns the actively enrolled students of the cycle's
// classes that answered nothing in the cycle, deduplicated and ordered by ID.
func (s *ClosingReminderService) pendingStudents(ctx context.Context, cycleID int64) ([]*evaluation.Student, error) {
	classIDs, err := s.evalRepo.ListClassIDsByCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes of cycle %d: %w", cycleID, err)
	}

	responded := make(map[int64]struct{})
	students := make(map[int64]*evaluation.Student)
	for _, classID := range classIDs {
		ids, err := s.evalRepo.ListRespondentIDs(ctx, cycleID, classID)
		if err != nil {
			return nil, fmt.Errorf("failed to list respondents of class %d: %w", classID, err)
		}
		for _, id := range ids {
			responded[id] = struct{}{}
		}

		enrolled, err := s.evalRepo.ListActiveStudents(ctx, classID)
		if err != nil {
			return nil, fmt.Errorf("failed to list students of class %d: %w", classID, err)
		}
		for _, st := range enrolled {
			students[st.ID] = st
		}
	}

	pending := make([]*evaluation.Student, 0, len(students))
	for id, st := range students {
		if _, ok := responded[id]; ok {
			continue
		}
		pending = append(pending, st)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending, nil
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"evaluation_reminders/internal/domain/evaluation"
	"evaluation_reminders/internal/domain/mail"
	"evaluation_reminders/internal/domain/reminder"

	"github.com/sirupsen/logrus"
)

const defaultChunkSize = 200

// ReminderConfig holds the tunables of the batch runner.
type ReminderConfig struct {
	Threshold              reminder.Percent
	Frequency              time.Duration
	MaxRemindersPerStudent int
	ChunkSize              int
	SendTimeout            time.Duration
	SendConcurrency        int
	StaleRunningAfter      time.Duration
	SiteURL                string
}

// RunOptions are the per-invocation flags of a batch run.
type RunOptions struct {
	DryRun     bool
	ForceJobID int64 // zero means "all due jobs"
	BatchSize  int   // recipients per chunk; zero uses ReminderConfig.ChunkSize
}

// JobError is a per-job failure surfaced in the run summary.
type JobError struct {
	JobID   int64  `json:"job_id"`
	Message string `json:"message"`
}

// RunSummary is the result of one RunBatch call.
type RunSummary struct {
	JobsSelected  int        `json:"jobs_selected"`
	JobsProcessed int        `json:"jobs_processed"`
	JobsSkipped   int        `json:"jobs_skipped"`
	EmailsSent    int        `json:"emails_sent"`
	EmailsFailed  int        `json:"emails_failed"`
	EmailsSkipped int        `json:"emails_skipped"`
	WouldSend     int        `json:"would_send"`
	JobsCompleted int        `json:"jobs_completed"`
	JobsFailed    int        `json:"jobs_failed"`
	DryRun        bool       `json:"dry_run"`
	Errors        []JobError `json:"errors,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
}

func (s *RunSummary) addError(jobID int64, err error) {
	s.Errors = append(s.Errors, JobError{JobID: jobID, Message: reminder.Truncate(err.Error(), reminder.MaxErrorMessageLength)})
}

// ReminderService drives reminder jobs through their per-pass state machine.
type ReminderService interface {
	// RunBatch processes every due job (or only opts.ForceJobID) once. The
	// returned summary is never nil; the error is only set when job selection
	// itself failed.
	RunBatch(ctx context.Context, opts RunOptions) (*RunSummary, error)
}

// ReminderServiceImpl implements ReminderService.
type ReminderServiceImpl struct {
	notifRepo   reminder.Repository
	evalRepo    evaluation.Repository
	sender      mail.Sender
	rates       *RateCalculator
	eligibility *Eligibility
	cfg         ReminderConfig
	logger      *logrus.Entry
	now         func() time.Time
}

func NewReminderServiceImpl(
	nr reminder.Repository,
	er evaluation.Repository,
	sender mail.Sender,
	cfg ReminderConfig,
	logger *logrus.Entry,
) *ReminderServiceImpl {
	return &ReminderServiceImpl{
		notifRepo:   nr,
		evalRepo:    er,
		sender:      sender,
		rates:       NewRateCalculator(er),
		eligibility: NewEligibility(er, nr, cfg.MaxRemindersPerStudent),
		cfg:         cfg,
		logger:      logger.WithField("component", "reminder_service"),
		now:         time.Now,
	}
}

// passResult tallies the recipient outcomes of one pass.
type passResult struct {
	sent      int
	failed    int
	skipped   int
	wouldSend int
}

func (s *ReminderServiceImpl) RunBatch(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	now := s.now()
	summary := &RunSummary{DryRun: opts.DryRun, StartedAt: now}
	staleBefore := now.Add(-s.cfg.StaleRunningAfter)

	chunkSize := opts.BatchSize
	if chunkSize <= 0 {
		chunkSize = s.cfg.ChunkSize
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	logEntry := s.logger.WithFields(logrus.Fields{
		"dry_run":      opts.DryRun,
		"force_job_id": opts.ForceJobID,
		"batch_size":   chunkSize,
		"threshold":    s.cfg.Threshold.String(),
	})
	logEntry.Info("Starting reminder batch")

	jobs, err := s.selectJobs(ctx, opts, now, staleBefore, summary)
	if err != nil {
		summary.addError(opts.ForceJobID, err)
		summary.FinishedAt = s.now()
		logEntry.WithError(err).Error("Failed to select reminder jobs")
		return summary, err
	}
	summary.JobsSelected = len(jobs)
	if len(jobs) == 0 {
		summary.FinishedAt = s.now()
		logEntry.Info("No reminder jobs due")
		return summary, nil
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			logEntry.WithError(ctx.Err()).Warn("Reminder batch interrupted before all jobs were processed")
			break
		}
		s.processJob(ctx, job, opts, chunkSize, now, staleBefore, summary)
	}

	summary.FinishedAt = s.now()
	logEntry.WithFields(logrus.Fields{
		"jobs_selected":  summary.JobsSelected,
		"jobs_processed": summary.JobsProcessed,
		"jobs_skipped":   summary.JobsSkipped,
		"emails_sent":    summary.EmailsSent,
		"emails_failed":  summary.EmailsFailed,
		"emails_skipped": summary.EmailsSkipped,
		"would_send":     summary.WouldSend,
		"jobs_completed": summary.JobsCompleted,
		"jobs_failed":    summary.JobsFailed,
	}).Info("Reminder batch finished")
	return summary, nil
}

// selectJobs returns the jobs to process. A missing or non-runnable forced job
// is reported in the summary and yields no jobs.
func (s *ReminderServiceImpl) selectJobs(ctx context.Context, opts RunOptions, now, staleBefore time.Time, summary *RunSummary) ([]*reminder.Job, error) {
	if opts.ForceJobID == 0 {
		jobs, err := s.notifRepo.ListDueJobs(ctx, now, staleBefore)
		if err != nil {
			return nil, fmt.Errorf("failed to list due jobs: %w", err)
		}
		return jobs, nil
	}

	job, err := s.notifRepo.GetJobByID(ctx, opts.ForceJobID)
	if err != nil {
		if errors.Is(err, reminder.ErrJobNotFound) {
			s.logger.WithField("job_id", opts.ForceJobID).Warn("Forced reminder job not found")
			summary.addError(opts.ForceJobID, err)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job %d: %w", opts.ForceJobID, err)
	}

	switch job.Status {
	case reminder.JobStatusCompleted, reminder.JobStatusPaused:
		s.logger.WithFields(logrus.Fields{"job_id": job.ID, "status": job.Status}).Warn("Forced reminder job is not runnable")
		summary.addError(job.ID, fmt.Errorf("job %d is %s", job.ID, job.Status))
		return nil, nil
	}
	return []*reminder.Job{job}, nil
}

func (s *ReminderServiceImpl) processJob(ctx context.Context, job *reminder.Job, opts RunOptions, chunkSize int, now, staleBefore time.Time, summary *RunSummary) {
	logEntry := s.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"cycle_id": job.CycleID,
		"class_id": job.ClassID,
		"dry_run":  opts.DryRun,
	})

	if !opts.DryRun {
		claimed, err := s.notifRepo.ClaimJob(ctx, job.ID, now, staleBefore, opts.ForceJobID != 0)
		if err != nil {
			logEntry.WithError(err).Error("Failed to claim reminder job")
			summary.JobsSkipped++
			summary.addError(job.ID, fmt.Errorf("failed to claim job: %w", err))
			return
		}
		if !claimed {
			logEntry.Info("Reminder job is held by another runner or no longer runnable, skipping")
			summary.JobsSkipped++
			return
		}
	}
	job.Status = reminder.JobStatusRunning
	job.LastRunAt = sql.NullTime{Time: now, Valid: true}
	summary.JobsProcessed++

	res, err := s.executePass(ctx, job, opts.DryRun, chunkSize, now, logEntry)
	if err != nil {
		job.Fail(err.Error())
		logEntry.WithError(err).Error("Reminder pass failed")
	}

	if !opts.DryRun {
		if uerr := s.notifRepo.UpdateJob(ctx, job); uerr != nil {
			// The claim already stored Running; only stale recovery releases the row now.
			logEntry.WithError(uerr).WithFields(logrus.Fields{
				"intended_status": job.Status,
				"stale_after":     s.cfg.StaleRunningAfter.String(),
			}).Error("Reminder job state not persisted, job stays Running until stale recovery")
			persistErr := fmt.Errorf("job state %s not persisted, job stays %s until stale recovery after %s: %w",
				job.Status, reminder.JobStatusRunning, s.cfg.StaleRunningAfter, uerr)
			if err == nil {
				err = persistErr
			} else {
				err = fmt.Errorf("%v; %w", err, persistErr)
			}
		}
	}

	summary.EmailsSent += res.sent
	summary.EmailsFailed += res.failed
	summary.EmailsSkipped += res.skipped
	summary.WouldSend += res.wouldSend

	if err != nil {
		summary.JobsFailed++
		summary.addError(job.ID, err)
		return
	}
	if job.Status == reminder.JobStatusCompleted {
		summary.JobsCompleted++
	}
}

// executePass runs steps 2-6 of the job state machine on the in-memory job.
// Panics are converted into errors so one job cannot take the batch down.
func (s *ReminderServiceImpl) executePass(ctx context.Context, job *reminder.Job, dryRun bool, chunkSize int, now time.Time, logEntry *logrus.Entry) (res passResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during reminder pass: %v", r)
		}
	}()

	cycle, err := s.evalRepo.GetCycleByID(ctx, job.CycleID)
	if err != nil {
		return res, fmt.Errorf("failed to load cycle %d: %w", job.CycleID, err)
	}
	if cycle.HasEnded(now) {
		logEntry.WithField("end_date", cycle.EndDate.Format("2006-01-02")).Info("Cycle has ended, completing reminder job")
		job.Status = reminder.JobStatusCompleted
		return res, nil
	}

	snap, err := s.rates.ComputeRate(ctx, job.CycleID, job.ClassID)
	if err != nil {
		return res, err
	}
	job.EligibleCount = snap.EligibleCount
	job.RespondentCount = snap.RespondentCount
	job.ResponseRate = snap.Rate
	logEntry = logEntry.WithFields(logrus.Fields{
		"eligible":    snap.EligibleCount,
		"respondents": snap.RespondentCount,
		"rate":        snap.Rate.String(),
	})

	if snap.Rate >= s.cfg.Threshold {
		logEntry.Info("Response rate threshold reached, completing reminder job")
		job.Status = reminder.JobStatusCompleted
		return res, nil
	}

	recipients, err := s.eligibility.EligibleRecipients(ctx, job)
	if err != nil {
		return res, err
	}
	if len(recipients) == 0 {
		logEntry.Info("No eligible recipients left, completing reminder job")
		job.Status = reminder.JobStatusCompleted
		return res, nil
	}

	class, err := s.evalRepo.GetClassByID(ctx, job.ClassID)
	if err != nil {
		return res, fmt.Errorf("failed to load class %d: %w", job.ClassID, err)
	}
	rounds, err := s.notifRepo.CountNotificationsByStudent(ctx, job.ID)
	if err != nil {
		return res, fmt.Errorf("failed to count notifications for job %d: %w", job.ID, err)
	}

	logEntry.WithField("recipients", len(recipients)).Info("Sending reminders")
	for start, chunkNo := 0, 1; start < len(recipients); start, chunkNo = start+chunkSize, chunkNo+1 {
		end := start + chunkSize
		if end > len(recipients) {
			end = len(recipients)
		}
		chunkLog := logEntry.WithFields(logrus.Fields{"chunk": chunkNo, "chunk_size": end - start})
		chunkLog.Debug("Processing recipient chunk")

		if dryRun {
			for _, st := range recipients[start:end] {
				chunkLog.WithFields(logrus.Fields{
					"student_id": st.ID,
					"email":      st.Email,
					"round":      rounds[st.ID] + 1,
				}).Info("[DRY RUN] Would send reminder")
				res.wouldSend++
			}
			continue
		}
		s.sendChunk(ctx, job, class, cycle, recipients[start:end], rounds, &res, chunkLog)
	}

	if !dryRun {
		job.TotalSent += res.sent
		job.TotalFailed += res.failed
		job.RoundsExecuted++
	}
	job.NextRunAt = sql.NullTime{Time: now.Add(s.cfg.Frequency), Valid: true}
	job.Status = reminder.JobStatusPending
	job.ErrorMessage = ""

	logEntry.WithFields(logrus.Fields{
		"sent":        res.sent,
		"failed":      res.failed,
		"skipped":     res.skipped,
		"next_run_at": job.NextRunAt.Time,
	}).Info("Reminder pass finished")
	return res, nil
}

// sendChunk notifies one chunk of recipients, at most SendConcurrency at a time.
// Each recipient appears once per pass, so rounds stay gapless under concurrency.
func (s *ReminderServiceImpl) sendChunk(
	ctx context.Context,
	job *reminder.Job,
	class *evaluation.Class,
	cycle *evaluation.Cycle,
	students []*evaluation.Student,
	rounds map[int64]int,
	res *passResult,
	logEntry *logrus.Entry,
) {
	concurrency := s.cfg.SendConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, st := range students {
		st := st
		round := rounds[st.ID] + 1

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			status := s.notifyStudent(ctx, job, class, cycle, st, round, logEntry)

			mu.Lock()
			defer mu.Unlock()
			switch status {
			case reminder.NotificationSent:
				res.sent++
			case reminder.NotificationSkipped:
				res.skipped++
			default:
				res.failed++
			}
		}()
	}
	wg.Wait()
}

// notifyStudent creates the student's next notification row and attempts delivery.
// It never returns an error; failures are recorded on the row and in the status.
func (s *ReminderServiceImpl) notifyStudent(
	ctx context.Context,
	job *reminder.Job,
	class *evaluation.Class,
	cycle *evaluation.Cycle,
	st *evaluation.Student,
	round int,
	logEntry *logrus.Entry,
) (status reminder.NotificationStatus) {
	logEntry = logEntry.WithFields(logrus.Fields{"student_id": st.ID, "round": round})
	defer func() {
		if r := recover(); r != nil {
			logEntry.Errorf("Panic while sending reminder: %v", r)
			status = reminder.NotificationFailed
		}
	}()

	n := &reminder.Notification{
		JobID:     job.ID,
		StudentID: st.ID,
		Status:    reminder.NotificationPending,
		Round:     round,
	}
	if err := s.notifRepo.CreateNotification(ctx, n); err != nil {
		logEntry.WithError(err).Error("Failed to create notification row")
		return reminder.NotificationFailed
	}

	if st.Email == "" {
		if err := s.notifRepo.MarkNotificationSkipped(ctx, n.ID, "student has no e-mail address"); err != nil {
			logEntry.WithError(err).Error("Failed to mark notification skipped")
		}
		logEntry.Warn("Student has no e-mail address, reminder skipped")
		return reminder.NotificationSkipped
	}

	msg, err := buildReminderMessage(s.cfg.SiteURL, st, class, cycle, round)
	if err != nil {
		s.markFailed(ctx, n.ID, err.Error(), logEntry)
		return reminder.NotificationFailed
	}

	sendCtx := ctx
	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.cfg.SendTimeout)
		defer cancel()
	}

	messageID, err := s.sender.Send(sendCtx, msg)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = sendTimeoutReason(s.cfg.SendTimeout)
		}
		logEntry.WithError(err).Warn("Failed to send reminder")
		s.markFailed(ctx, n.ID, reason, logEntry)
		return reminder.NotificationFailed
	}

	if err := s.notifRepo.MarkNotificationSent(ctx, n.ID, s.now(), messageID); err != nil {
		// The transport accepted the message; count it as sent.
		logEntry.WithError(err).Error("Failed to mark notification sent")
	}
	logEntry.Debug("Reminder sent")
	return reminder.NotificationSent
}

func (s *ReminderServiceImpl) markFailed(ctx context.Context, id int64, reason string, logEntry *logrus.Entry) {
	if err := s.notifRepo.MarkNotificationFailed(ctx, id, reminder.Truncate(reason, reminder.MaxErrorMessageLength)); err != nil {
		logEntry.WithError(err).Error("Failed to mark notification failed")
	}
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"evaluation_reminders/internal/domain/evaluation"
	"evaluation_reminders/internal/domain/reminder"

	"github.com/sirupsen/logrus"
)

// Custom application-level errors for admin service
var ErrJobCompleted = fmt.Errorf("reminder job is already completed")
var ErrJobNotPaused = fmt.Errorf("reminder job is not paused")
var ErrJobNotFailed = fmt.Errorf("reminder job is not in failed state")

// AdminService owns the reminder job lifecycle outside of batch passes:
// creation when a class joins a cycle, pausing on detach and operator actions.
type AdminService struct {
	evalRepo  evaluation.Repository
	notifRepo reminder.Repository
	frequency time.Duration
	logger    *logrus.Entry
	now       func() time.Time
}

func NewAdminService(er evaluation.Repository, nr reminder.Repository, frequency time.Duration, logger *logrus.Entry) *AdminService {
	return &AdminService{
		evalRepo:  er,
		notifRepo: nr,
		frequency: frequency,
		logger:    logger.WithField("component", "admin_service"),
		now:       time.Now,
	}
}

// AttachClass links the class to the cycle, makes sure the class professor has
// an evaluation for it and ensures the reminder job exists. Safe to repeat.
func (s *AdminService) AttachClass(ctx context.Context, cycleID, classID int64) (*reminder.Job, error) {
	if _, err := s.evalRepo.GetCycleByID(ctx, cycleID); err != nil {
		return nil, fmt.Errorf("failed to get cycle %d: %w", cycleID, err)
	}
	class, err := s.evalRepo.GetClassByID(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to get class %d: %w", classID, err)
	}

	linked, err := s.evalRepo.AttachClass(ctx, cycleID, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to attach class %d to cycle %d: %w", classID, cycleID, err)
	}

	ev := &evaluation.Evaluation{
		CycleID:        cycleID,
		ClassID:        classID,
		ProfessorID:    class.ProfessorID,
		DisciplineName: class.DisciplineName,
	}
	createdEval, err := s.evalRepo.GetOrCreateEvaluation(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create evaluation for cycle %d class %d: %w", cycleID, classID, err)
	}

	job, err := s.EnsureJob(ctx, cycleID, classID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"cycle_id":           cycleID,
		"class_id":           classID,
		"linked":             linked,
		"evaluation_id":      ev.ID,
		"evaluation_created": createdEval,
		"job_id":             job.ID,
		"job_status":         job.Status,
	}).Info("Class attached to cycle")
	return job, nil
}

// EnsureJob returns the job for (cycleID, classID), creating it Pending with
// nextRunAt = now + frequency when missing. A Paused job goes back to Pending.
func (s *AdminService) EnsureJob(ctx context.Context, cycleID, classID int64) (*reminder.Job, error) {
	now := s.now()
	job, created, err := s.notifRepo.EnsureJob(ctx, cycleID, classID, now.Add(s.frequency))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure reminder job for cycle %d class %d: %w", cycleID, classID, err)
	}
	if created {
		s.logger.WithFields(logrus.Fields{"job_id": job.ID, "cycle_id": cycleID, "class_id": classID}).Info("Reminder job created")
		return job, nil
	}
	if job.Status != reminder.JobStatusPaused {
		return job, nil
	}

	job.Status = reminder.JobStatusPending
	job.NextRunAt = sql.NullTime{Time: now, Valid: true}
	if err := s.notifRepo.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to reactivate reminder job %d: %w", job.ID, err)
	}
	s.logger.WithField("job_id", job.ID).Info("Paused reminder job reactivated")
	return job, nil
}

// DetachClass unlinks the class from the cycle, drops its unanswered
// evaluations and pauses its reminder job. Responses and notifications stay.
func (s *AdminService) DetachClass(ctx context.Context, cycleID, classID int64) error {
	if err := s.evalRepo.DetachClass(ctx, cycleID, classID); err != nil {
		return fmt.Errorf("failed to detach class %d from cycle %d: %w", classID, cycleID, err)
	}
	removed, err := s.evalRepo.DeleteUnansweredEvaluations(ctx, cycleID, classID)
	if err != nil {
		return fmt.Errorf("failed to delete unanswered evaluations for cycle %d class %d: %w", cycleID, classID, err)
	}
	paused, err := s.PauseJobsForClass(ctx, cycleID, classID)
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"cycle_id":            cycleID,
		"class_id":            classID,
		"evaluations_removed": removed,
		"jobs_paused":         paused,
	}).Info("Class detached from cycle")
	return nil
}

// PauseJobsForClass moves Pending, Running and Failed jobs of the pair to Paused.
func (s *AdminService) PauseJobsForClass(ctx context.Context, cycleID, classID int64) (int64, error) {
	n, err := s.notifRepo.SetJobStatusForClass(ctx, cycleID, classID,
		[]reminder.JobStatus{reminder.JobStatusPending, reminder.JobStatusRunning, reminder.JobStatusFailed},
		reminder.JobStatusPaused)
	if err != nil {
		return 0, fmt.Errorf("failed to pause reminder jobs for cycle %d class %d: %w", cycleID, classID, err)
	}
	return n, nil
}

// PauseJob pauses a single job. Pausing a Paused job is a no-op.
func (s *AdminService) PauseJob(ctx context.Context, jobID int64) (*reminder.Job, error) {
	job, err := s.notifRepo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case reminder.JobStatusCompleted:
		return job, ErrJobCompleted
	case reminder.JobStatusPaused:
		return job, nil
	}

	if _, err := s.PauseJobsForClass(ctx, job.CycleID, job.ClassID); err != nil {
		return nil, err
	}
	job.Status = reminder.JobStatusPaused
	s.logger.WithField("job_id", job.ID).Info("Reminder job paused")
	return job, nil
}

// ResumeJob moves a Paused job back to Pending, due immediately.
func (s *AdminService) ResumeJob(ctx context.Context, jobID int64) (*reminder.Job, error) {
	job, err := s.notifRepo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != reminder.JobStatusPaused {
		return job, ErrJobNotPaused
	}
	return s.reschedule(ctx, job, "Reminder job resumed")
}

// RetryJob moves a Failed job back to Pending, due immediately, clearing its diagnostic.
func (s *AdminService) RetryJob(ctx context.Context, jobID int64) (*reminder.Job, error) {
	job, err := s.notifRepo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != reminder.JobStatusFailed {
		return job, ErrJobNotFailed
	}
	job.ErrorMessage = ""
	return s.reschedule(ctx, job, "Reminder job queued for retry")
}

func (s *AdminService) reschedule(ctx context.Context, job *reminder.Job, msg string) (*reminder.Job, error) {
	job.Status = reminder.JobStatusPending
	job.NextRunAt = sql.NullTime{Time: s.now(), Valid: true}
	if err := s.notifRepo.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to update reminder job %d: %w", job.ID, err)
	}
	s.logger.WithField("job_id", job.ID).Info(msg)
	return job, nil
}

// ListJobs returns jobs in any of the given statuses, or every job when none are given.
func (s *AdminService) ListJobs(ctx context.Context, statuses ...reminder.JobStatus) ([]*reminder.Job, error) {
	if len(statuses) == 0 {
		statuses = []reminder.JobStatus{
			reminder.JobStatusPending,
			reminder.JobStatusRunning,
			reminder.JobStatusCompleted,
			reminder.JobStatusPaused,
			reminder.JobStatusFailed,
		}
	}
	for _, st := range statuses {
		if !st.IsValid() {
			return nil, fmt.Errorf("unknown job status %q", st)
		}
	}
	jobs, err := s.notifRepo.ListJobsByStatus(ctx, statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder jobs: %w", err)
	}
	return jobs, nil
}

// IsNotFound reports whether err means the requested record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, reminder.ErrJobNotFound) ||
		errors.Is(err, evaluation.ErrCycleNotFound) ||
		errors.Is(err, evaluation.ErrClassNotFound) ||
		errors.Is(err, evaluation.ErrEvaluationNotFound) ||
		errors.Is(err, evaluation.ErrResponseNotFound)
}

// internal/domain/reminder/repository.go
package reminder

import (
	"context"
	"time"
)

// Repository defines persistence for ReminderJob and Notification records.
type Repository interface {
	// Job methods

	// EnsureJob inserts a Pending job for (cycleID, classID) unless one exists.
	// The returned bool is true when a row was created.
	EnsureJob(ctx context.Context, cycleID, classID int64, nextRunAt time.Time) (*Job, bool, error)
	GetJobByID(ctx context.Context, id int64) (*Job, error)
	GetJobByCycleAndClass(ctx context.Context, cycleID, classID int64) (*Job, error)
	ListJobsByStatus(ctx context.Context, statuses []JobStatus) ([]*Job, error)
	// ListDueJobs returns Pending jobs and stale Running jobs whose NextRunAt is
	// null or <= now, ordered by NextRunAt then ID.
	ListDueJobs(ctx context.Context, now, staleBefore time.Time) ([]*Job, error)
	// ClaimJob moves a job to Running and stamps LastRunAt = now. Without force
	// the job must be Pending or a Running job last run before staleBefore.
	// With force a Failed job may also be claimed. Returns false when another
	// runner holds the job or its state does not allow a pass.
	ClaimJob(ctx context.Context, id int64, now, staleBefore time.Time, force bool) (bool, error)
	// UpdateJob persists status, snapshot, counters and diagnostics.
	UpdateJob(ctx context.Context, job *Job) error
	// SetJobStatusForClass changes the status of every job for (cycleID, classID) whose
	// current status is one of from. Returns the number of jobs changed.
	SetJobStatusForClass(ctx context.Context, cycleID, classID int64, from []JobStatus, to JobStatus) (int64, error)

	// Notification methods

	CreateNotification(ctx context.Context, n *Notification) error
	// MarkNotificationSent only applies to Pending rows.
	MarkNotificationSent(ctx context.Context, id int64, sentAt time.Time, messageID string) error
	// MarkNotificationFailed increments Attempts; only applies to Pending rows.
	MarkNotificationFailed(ctx context.Context, id int64, reason string) error
	// MarkNotificationSkipped records why a Pending row was never sent.
	MarkNotificationSkipped(ctx context.Context, id int64, reason string) error
	// CountNotificationsByStudent returns, per student, the number of rows for
	// the job (any status).
	CountNotificationsByStudent(ctx context.Context, jobID int64) (map[int64]int, error)
	// CountSentByStudent returns, per student, the number of Sent rows for the job.
	CountSentByStudent(ctx context.Context, jobID int64) (map[int64]int, error)
	ListNotificationsByJob(ctx context.Context, jobID int64) ([]*Notification, error)
}

// internal/domain/reminder/job.go
package reminder

import (
	"database/sql"
	"time"
)

// JobStatus is the lifecycle state of a ReminderJob.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusPaused    JobStatus = "PAUSED"
	JobStatusFailed    JobStatus = "FAILED"
)

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusPaused, JobStatusFailed:
		return true
	}
	return false
}

// MaxErrorMessageLength bounds Job.ErrorMessage.
const MaxErrorMessageLength = 500

// Job tracks reminder progress for one (cycle, class) pair.
// Corresponds to the 'reminder_jobs' table; unique on (cycle_id, class_id).
type Job struct {
	ID      int64
	CycleID int64
	ClassID int64
	Status  JobStatus

	NextRunAt sql.NullTime // not picked up before this instant

	EligibleCount   int
	RespondentCount int
	ResponseRate    Percent

	TotalSent      int
	TotalFailed    int
	RoundsExecuted int

	LastRunAt    sql.NullTime
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDue reports whether a scheduled (non-forced) pass may pick the job up at now.
// A Running job is only due again once its pass is older than staleBefore.
func (j *Job) IsDue(now, staleBefore time.Time) bool {
	switch j.Status {
	case JobStatusPending:
	case JobStatusRunning:
		if j.LastRunAt.Valid && j.LastRunAt.Time.After(staleBefore) {
			return false
		}
	default:
		return false
	}
	return !j.NextRunAt.Valid || !j.NextRunAt.Time.After(now)
}

// Fail moves the job to Failed, keeping at most MaxErrorMessageLength runes of msg.
func (j *Job) Fail(msg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = Truncate(msg, MaxErrorMessageLength)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

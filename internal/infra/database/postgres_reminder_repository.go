package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"evaluation_reminders/internal/domain/reminder"

	"github.com/lib/pq" // For pq.Array and pq.Error
)

const uniqueViolation = "23505"

type PostgresReminderRepository struct {
	db *sql.DB
}

func NewPostgresReminderRepository(db *sql.DB) *PostgresReminderRepository {
	return &PostgresReminderRepository{db: db}
}

const jobColumns = `id, cycle_id, class_id, status, next_run_at, eligible_count, respondent_count,
       response_rate, total_sent, total_failed, rounds_executed, last_run_at, error_message,
       created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*reminder.Job, error) {
	j := reminder.Job{}
	err := row.Scan(
		&j.ID, &j.CycleID, &j.ClassID, &j.Status, &j.NextRunAt, &j.EligibleCount, &j.RespondentCount,
		&j.ResponseRate, &j.TotalSent, &j.TotalFailed, &j.RoundsExecuted, &j.LastRunAt, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*reminder.Job, error) {
	jobs := make([]*reminder.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning reminder job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder job rows: %w", err)
	}
	return jobs, nil
}

func statusStrings(statuses []reminder.JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// --- ReminderJob Methods ---

func (r *PostgresReminderRepository) EnsureJob(ctx context.Context, cycleID, classID int64, nextRunAt time.Time) (*reminder.Job, bool, error) {
	query := `INSERT INTO reminder_jobs (cycle_id, class_id, status, next_run_at)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (cycle_id, class_id) DO NOTHING
               RETURNING ` + jobColumns
	job, err := scanJob(r.db.QueryRowContext(ctx, query, cycleID, classID, reminder.JobStatusPending, nextRunAt))
	if err == nil {
		return job, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("error creating reminder job: %w", err)
	}

	// The row already exists.
	job, err = r.GetJobByCycleAndClass(ctx, cycleID, classID)
	if err != nil {
		return nil, false, err
	}
	return job, false, nil
}

func (r *PostgresReminderRepository) GetJobByID(ctx context.Context, id int64) (*reminder.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM reminder_jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, reminder.ErrJobNotFound
		}
		return nil, fmt.Errorf("error getting reminder job by ID: %w", err)
	}
	return job, nil
}

func (r *PostgresReminderRepository) GetJobByCycleAndClass(ctx context.Context, cycleID, classID int64) (*reminder.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM reminder_jobs WHERE cycle_id = $1 AND class_id = $2`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, cycleID, classID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, reminder.ErrJobNotFound
		}
		return nil, fmt.Errorf("error getting reminder job by cycle and class: %w", err)
	}
	return job, nil
}

func (r *PostgresReminderRepository) ListJobsByStatus(ctx context.Context, statuses []reminder.JobStatus) ([]*reminder.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM reminder_jobs WHERE status = ANY($1) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(statusStrings(statuses)))
	if err != nil {
		return nil, fmt.Errorf("error querying reminder jobs by status: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *PostgresReminderRepository) ListDueJobs(ctx context.Context, now, staleBefore time.Time) ([]*reminder.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM reminder_jobs
               WHERE (status = 'PENDING'
                      OR (status = 'RUNNING' AND (last_run_at IS NULL OR last_run_at <= $2)))
                 AND (next_run_at IS NULL OR next_run_at <= $1)
               ORDER BY next_run_at NULLS FIRST, id`
	rows, err := r.db.QueryContext(ctx, query, now, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("error querying due reminder jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *PostgresReminderRepository) ClaimJob(ctx context.Context, id int64, now, staleBefore time.Time, force bool) (bool, error) {
	query := `UPDATE reminder_jobs
               SET status = 'RUNNING', last_run_at = $2, updated_at = NOW()
               WHERE id = $1
                 AND (status = 'PENDING'
                      OR (status = 'RUNNING' AND (last_run_at IS NULL OR last_run_at <= $3))
                      OR ($4 AND status = 'FAILED'))`
	res, err := r.db.ExecContext(ctx, query, id, now, staleBefore, force)
	if err != nil {
		return false, fmt.Errorf("error claiming reminder job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading claimed rows: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresReminderRepository) UpdateJob(ctx context.Context, job *reminder.Job) error {
	query := `UPDATE reminder_jobs
               SET status = $2, next_run_at = $3, eligible_count = $4, respondent_count = $5,
                   response_rate = $6, total_sent = $7, total_failed = $8, rounds_executed = $9,
                   last_run_at = $10, error_message = $11, updated_at = NOW()
               WHERE id = $1
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		job.ID, job.Status, job.NextRunAt, job.EligibleCount, job.RespondentCount,
		job.ResponseRate, job.TotalSent, job.TotalFailed, job.RoundsExecuted,
		job.LastRunAt, job.ErrorMessage,
	).Scan(&job.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return reminder.ErrJobNotFound
		}
		return fmt.Errorf("error updating reminder job: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) SetJobStatusForClass(ctx context.Context, cycleID, classID int64, from []reminder.JobStatus, to reminder.JobStatus) (int64, error) {
	query := `UPDATE reminder_jobs SET status = $3, updated_at = NOW()
               WHERE cycle_id = $1 AND class_id = $2 AND status = ANY($4)`
	res, err := r.db.ExecContext(ctx, query, cycleID, classID, to, pq.Array(statusStrings(from)))
	if err != nil {
		return 0, fmt.Errorf("error changing reminder job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading changed rows: %w", err)
	}
	return n, nil
}

// --- Notification Methods ---

func (r *PostgresReminderRepository) CreateNotification(ctx context.Context, n *reminder.Notification) error {
	query := `INSERT INTO reminder_notifications (job_id, student_id, status, round, attempts)
               VALUES ($1, $2, $3, $4, $5)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, n.JobID, n.StudentID, n.Status, n.Round, n.Attempts).
		Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("job %d student %d round %d: %w", n.JobID, n.StudentID, n.Round, reminder.ErrDuplicateRound)
		}
		return fmt.Errorf("error creating notification: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) execOnPending(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading updated notification rows: %w", err)
	}
	if n == 0 {
		return reminder.ErrNotificationNotPending
	}
	return nil
}

func (r *PostgresReminderRepository) MarkNotificationSent(ctx context.Context, id int64, sentAt time.Time, messageID string) error {
	return r.execOnPending(ctx, `UPDATE reminder_notifications
               SET status = 'SENT', sent_at = $2, message_id = $3, attempts = attempts + 1, updated_at = NOW()
               WHERE id = $1 AND status = 'PENDING'`, id, sentAt, messageID)
}

func (r *PostgresReminderRepository) MarkNotificationFailed(ctx context.Context, id int64, reason string) error {
	return r.execOnPending(ctx, `UPDATE reminder_notifications
               SET status = 'FAILED', failure_reason = $2, attempts = attempts + 1, updated_at = NOW()
               WHERE id = $1 AND status = 'PENDING'`, id, reason)
}

func (r *PostgresReminderRepository) MarkNotificationSkipped(ctx context.Context, id int64, reason string) error {
	return r.execOnPending(ctx, `UPDATE reminder_notifications
               SET status = 'SKIPPED', failure_reason = $2, updated_at = NOW()
               WHERE id = $1 AND status = 'PENDING'`, id, reason)
}

func (r *PostgresReminderRepository) countByStudent(ctx context.Context, query string, args ...interface{}) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error counting notifications: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var studentID int64
		var count int
		if err := rows.Scan(&studentID, &count); err != nil {
			return nil, fmt.Errorf("error scanning notification count: %w", err)
		}
		counts[studentID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification counts: %w", err)
	}
	return counts, nil
}

func (r *PostgresReminderRepository) CountNotificationsByStudent(ctx context.Context, jobID int64) (map[int64]int, error) {
	return r.countByStudent(ctx, `SELECT student_id, COUNT(*) FROM reminder_notifications
               WHERE job_id = $1 GROUP BY student_id`, jobID)
}

func (r *PostgresReminderRepository) CountSentByStudent(ctx context.Context, jobID int64) (map[int64]int, error) {
	return r.countByStudent(ctx, `SELECT student_id, COUNT(*) FROM reminder_notifications
               WHERE job_id = $1 AND status = 'SENT' GROUP BY student_id`, jobID)
}

func (r *PostgresReminderRepository) ListNotificationsByJob(ctx context.Context, jobID int64) ([]*reminder.Notification, error) {
	query := `SELECT id, job_id, student_id, status, round, attempts, sent_at, message_id, failure_reason, created_at, updated_at
               FROM reminder_notifications WHERE job_id = $1 ORDER BY student_id, round`
	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("error querying notifications by job: %w", err)
	}
	defer rows.Close()

	notifications := make([]*reminder.Notification, 0)
	for rows.Next() {
		n := reminder.Notification{}
		if err := rows.Scan(
			&n.ID, &n.JobID, &n.StudentID, &n.Status, &n.Round, &n.Attempts,
			&n.SentAt, &n.MessageID, &n.FailureReason, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning notification row: %w", err)
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return notifications, nil
}

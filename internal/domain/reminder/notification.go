// internal/domain/reminder/notification.go
package reminder

import (
	"database/sql"
	"time"
)

// NotificationStatus is the delivery state of a single reminder.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
	NotificationSkipped NotificationStatus = "SKIPPED"
)

// Notification is one reminder to one student within a job.
// Round is the student's own sequence number for the job (1, 2, 3...).
// Rows are append-only; a Sent row is never modified.
type Notification struct {
	ID            int64
	JobID         int64
	StudentID     int64
	Status        NotificationStatus
	Round         int
	Attempts      int
	SentAt        sql.NullTime
	MessageID     string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

package app

import (
	"context"
	"fmt"
	"sort"

	"evaluation_reminders/internal/domain/evaluation"
	"evaluation_reminders/internal/domain/reminder"
)

// Eligibility selects the students of a job that should receive a reminder.
type Eligibility struct {
	evalRepo      evaluation.Repository
	notifRepo     reminder.Repository
	maxPerStudent int
}

func NewEligibility(er evaluation.Repository, nr reminder.Repository, maxPerStudent int) *Eligibility {
	return &Eligibility{evalRepo: er, notifRepo: nr, maxPerStudent: maxPerStudent}
}

// EligibleRecipients returns actively enrolled students of job.ClassID that
// have not answered any evaluation of (job.CycleID, job.ClassID) and have
// received fewer than the configured number of Sent reminders for this job.
// A student without an e-mail address is returned only until the job holds a
// notification row for them, so the gap is recorded once instead of every pass.
// The result is ordered by student ID.
func (e *Eligibility) EligibleRecipients(ctx context.Context, job *reminder.Job) ([]*evaluation.Student, error) {
	students, err := e.evalRepo.ListActiveStudents(ctx, job.ClassID)
	if err != nil {
		return nil, fmt.Errorf("failed to list students of class %d: %w", job.ClassID, err)
	}
	if len(students) == 0 {
		return nil, nil
	}

	respondentIDs, err := e.evalRepo.ListRespondentIDs(ctx, job.CycleID, job.ClassID)
	if err != nil {
		return nil, fmt.Errorf("failed to list respondents for job %d: %w", job.ID, err)
	}
	responded := make(map[int64]struct{}, len(respondentIDs))
	for _, id := range respondentIDs {
		responded[id] = struct{}{}
	}

	sentCounts, err := e.notifRepo.CountSentByStudent(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sent reminders for job %d: %w", job.ID, err)
	}

	var notified map[int64]int
	eligible := make([]*evaluation.Student, 0, len(students))
	for _, st := range students {
		if _, ok := responded[st.ID]; ok {
			continue
		}
		if sentCounts[st.ID] >= e.maxPerStudent {
			continue
		}
		if st.Email == "" {
			if notified == nil {
				notified, err = e.notifRepo.CountNotificationsByStudent(ctx, job.ID)
				if err != nil {
					return nil, fmt.Errorf("failed to count notifications for job %d: %w", job.ID, err)
				}
			}
			if notified[st.ID] > 0 {
				continue
			}
		}
		eligible = append(eligible, st)
	}

	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	return eligible, nil
}

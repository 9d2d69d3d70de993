package app

import (
	"context"
	"fmt"

	"evaluation_reminders/internal/domain/evaluation"
	"evaluation_reminders/internal/domain/reminder"
)

// RateSnapshot is the result of one response-rate computation.
type RateSnapshot struct {
	EligibleCount   int
	RespondentCount int
	Rate            reminder.Percent
}

// RateCalculator computes response rates for (cycle, class) pairs. It only reads.
type RateCalculator struct {
	evalRepo evaluation.Repository
}

func NewRateCalculator(er evaluation.Repository) *RateCalculator {
	return &RateCalculator{evalRepo: er}
}

// ComputeRate counts active enrollments in the class and distinct students who
// answered any evaluation of (cycle, class). The rate is 0.00 for empty classes.
func (c *RateCalculator) ComputeRate(ctx context.Context, cycleID, classID int64) (RateSnapshot, error) {
	eligible, err := c.evalRepo.CountActiveEnrollments(ctx, classID)
	if err != nil {
		return RateSnapshot{}, fmt.Errorf("failed to count enrollments for class %d: %w", classID, err)
	}
	if eligible == 0 {
		return RateSnapshot{}, nil
	}

	respondents, err := c.evalRepo.CountDistinctRespondents(ctx, cycleID, classID)
	if err != nil {
		return RateSnapshot{}, fmt.Errorf("failed to count respondents for cycle %d class %d: %w", cycleID, classID, err)
	}

	return RateSnapshot{
		EligibleCount:   eligible,
		RespondentCount: respondents,
		Rate:            reminder.RatePercent(respondents, eligible),
	}, nil
}

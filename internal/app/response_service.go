package app

import (
	"context"
	"fmt"

	"evaluation_reminders/internal/domain/evaluation"

	"github.com/sirupsen/logrus"
)

var ErrUnknownOption = fmt.Errorf("unknown answer option")

// ResponseService is the write path for evaluation responses. Every write
// evicts the affected professor's cached metrics before it returns.
type ResponseService struct {
	evalRepo evaluation.Repository
	metrics  *MetricsService
	logger   *logrus.Entry
}

func NewResponseService(er evaluation.Repository, metrics *MetricsService, logger *logrus.Entry) *ResponseService {
	return &ResponseService{
		evalRepo: er,
		metrics:  metrics,
		logger:   logger.WithField("component", "response_service"),
	}
}

// Record stores a response and invalidates the evaluated professor's aggregates.
func (s *ResponseService) Record(ctx context.Context, r *evaluation.Response) error {
	if r.Kind == evaluation.QuestionMultipleChoice {
		if _, ok := r.Option.Weight(); !ok {
			return fmt.Errorf("%w %q", ErrUnknownOption, r.Option)
		}
	}

	ev, err := s.evalRepo.GetEvaluationByID(ctx, r.EvaluationID)
	if err != nil {
		return fmt.Errorf("failed to get evaluation %d: %w", r.EvaluationID, err)
	}
	if err := s.evalRepo.CreateResponse(ctx, r); err != nil {
		return fmt.Errorf("failed to create response for evaluation %d: %w", r.EvaluationID, err)
	}

	s.metrics.InvalidateProfessor(ev.ProfessorID, ev.CycleID)
	s.logger.WithFields(logrus.Fields{
		"response_id":   r.ID,
		"evaluation_id": ev.ID,
		"professor_id":  ev.ProfessorID,
		"cycle_id":      ev.CycleID,
	}).Debug("Response recorded")
	return nil
}

// Delete removes a response and invalidates the evaluated professor's aggregates.
func (s *ResponseService) Delete(ctx context.Context, responseID int64) error {
	r, err := s.evalRepo.GetResponseByID(ctx, responseID)
	if err != nil {
		return fmt.Errorf("failed to get response %d: %w", responseID, err)
	}
	ev, err := s.evalRepo.GetEvaluationByID(ctx, r.EvaluationID)
	if err != nil {
		return fmt.Errorf("failed to get evaluation %d: %w", r.EvaluationID, err)
	}
	if err := s.evalRepo.DeleteResponse(ctx, responseID); err != nil {
		return fmt.Errorf("failed to delete response %d: %w", responseID, err)
	}

	s.metrics.InvalidateProfessor(ev.ProfessorID, ev.CycleID)
	s.logger.WithFields(logrus.Fields{
		"response_id":  responseID,
		"professor_id": ev.ProfessorID,
		"cycle_id":     ev.CycleID,
	}).Debug("Response deleted")
	return nil
}

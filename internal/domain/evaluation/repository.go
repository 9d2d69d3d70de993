// internal/domain/evaluation/repository.go
package evaluation

import (
	"context"
	"time"
)

// Filter selects a professor's evaluations. Zero IDs mean "no restriction".
type Filter struct {
	ProfessorID    int64
	CycleID        int64
	ExcludeCycleID int64
}

// Repository defines read access to cycles, classes, enrollments and
// responses, plus the few writes the reminder subsystem performs.
type Repository interface {
	// Cycles and classes
	GetCycleByID(ctx context.Context, id int64) (*Cycle, error)
	ListCyclesByIDs(ctx context.Context, ids []int64) ([]*Cycle, error)
	// ListOpenCyclesEndingOn returns active, not closed cycles whose end date is day.
	ListOpenCyclesEndingOn(ctx context.Context, day time.Time) ([]*Cycle, error)
	GetClassByID(ctx context.Context, id int64) (*Class, error)
	AttachClass(ctx context.Context, cycleID, classID int64) (bool, error)
	DetachClass(ctx context.Context, cycleID, classID int64) error
	ListClassIDsByCycle(ctx context.Context, cycleID int64) ([]int64, error)

	// Enrollments
	CountActiveEnrollments(ctx context.Context, classID int64) (int, error)
	// ListActiveStudents returns actively enrolled students ordered by ID.
	ListActiveStudents(ctx context.Context, classID int64) ([]*Student, error)

	// Respondents
	CountDistinctRespondents(ctx context.Context, cycleID, classID int64) (int, error)
	ListRespondentIDs(ctx context.Context, cycleID, classID int64) ([]int64, error)

	// Evaluations
	GetOrCreateEvaluation(ctx context.Context, ev *Evaluation) (bool, error)
	DeleteUnansweredEvaluations(ctx context.Context, cycleID, classID int64) (int64, error)
	GetEvaluationByID(ctx context.Context, id int64) (*Evaluation, error)
	ListEvaluations(ctx context.Context, f Filter) ([]*Evaluation, error)

	// Responses
	CreateResponse(ctx context.Context, r *Response) error
	GetResponseByID(ctx context.Context, id int64) (*Response, error)
	DeleteResponse(ctx context.Context, id int64) error
	ListResponsesByEvaluations(ctx context.Context, evaluationIDs []int64) ([]*Response, error)

	// Closing reminders
	HasClosingReminder(ctx context.Context, cycleID int64, kind string) (bool, error)
	RecordClosingReminder(ctx context.Context, cycleID int64, kind string, total int) error
}

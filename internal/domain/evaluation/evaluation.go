// internal/domain/evaluation/evaluation.go
package evaluation

import (
	"database/sql"
	"time"
)

// Evaluation is the questionnaire instance for one (cycle, class, professor).
type Evaluation struct {
	ID             int64
	CycleID        int64
	ClassID        int64
	ProfessorID    int64
	DisciplineName string
	CreatedAt      time.Time
}

// QuestionKind distinguishes scored answers from free text.
type QuestionKind string

const (
	QuestionMultipleChoice QuestionKind = "MULTIPLE_CHOICE"
	QuestionText           QuestionKind = "TEXT"
)

// AnswerOption is one of the five ordered multiple-choice options.
type AnswerOption string

const (
	OptionDoesNotMeet  AnswerOption = "Não atende"
	OptionInsufficient AnswerOption = "Insuficiente"
	OptionRegular      AnswerOption = "Regular"
	OptionGood         AnswerOption = "Bom"
	OptionExcellent    AnswerOption = "Excelente"
)

// Options lists the answer options in ascending order.
var Options = []AnswerOption{
	OptionDoesNotMeet,
	OptionInsufficient,
	OptionRegular,
	OptionGood,
	OptionExcellent,
}

// Weight returns the fixed numeric weight of an option, and false for unknown options.
func (o AnswerOption) Weight() (float64, bool) {
	switch o {
	case OptionDoesNotMeet:
		return 0.00, true
	case OptionInsufficient:
		return 0.25, true
	case OptionRegular:
		return 0.50, true
	case OptionGood:
		return 0.75, true
	case OptionExcellent:
		return 1.00, true
	}
	return 0, false
}

// Response is one student's answer to one question of an evaluation.
type Response struct {
	ID           int64
	EvaluationID int64
	StudentID    sql.NullInt64
	QuestionID   int64
	Kind         QuestionKind
	Option       AnswerOption // set for multiple-choice answers
	Text         string       // set for free-text answers
	CreatedAt    time.Time
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"evaluation_reminders/internal/domain/evaluation"

	"github.com/lib/pq"
)

type PostgresEvaluationRepository struct {
	db *sql.DB
}

func NewPostgresEvaluationRepository(db *sql.DB) *PostgresEvaluationRepository {
	return &PostgresEvaluationRepository{db: db}
}

const cycleColumns = `id, name, start_date, end_date, active, closed, created_at`

func scanCycle(row rowScanner) (*evaluation.Cycle, error) {
	c := evaluation.Cycle{}
	if err := row.Scan(&c.ID, &c.Name, &c.StartDate, &c.EndDate, &c.Active, &c.Closed, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCycles(rows *sql.Rows) ([]*evaluation.Cycle, error) {
	cycles := make([]*evaluation.Cycle, 0)
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning cycle row: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycle rows: %w", err)
	}
	return cycles, nil
}

// --- Cycle and Class Methods ---

func (r *PostgresEvaluationRepository) GetCycleByID(ctx context.Context, id int64) (*evaluation.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM evaluation_cycles WHERE id = $1`
	c, err := scanCycle(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, evaluation.ErrCycleNotFound
		}
		return nil, fmt.Errorf("error getting cycle by ID: %w", err)
	}
	return c, nil
}

func (r *PostgresEvaluationRepository) ListCyclesByIDs(ctx context.Context, ids []int64) ([]*evaluation.Cycle, error) {
	if len(ids) == 0 {
		return []*evaluation.Cycle{}, nil
	}
	query := `SELECT ` + cycleColumns + ` FROM evaluation_cycles WHERE id = ANY($1) ORDER BY start_date DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("error querying cycles by IDs: %w", err)
	}
	defer rows.Close()
	return scanCycles(rows)
}

func (r *PostgresEvaluationRepository) ListOpenCyclesEndingOn(ctx context.Context, day time.Time) ([]*evaluation.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM evaluation_cycles
               WHERE active AND NOT closed AND end_date = $1::date
               ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("error querying cycles ending on %s: %w", day.Format("2006-01-02"), err)
	}
	defer rows.Close()
	return scanCycles(rows)
}

func (r *PostgresEvaluationRepository) GetClassByID(ctx context.Context, id int64) (*evaluation.Class, error) {
	query := `SELECT id, code, discipline_name, course_name, professor_id FROM classes WHERE id = $1`
	c := evaluation.Class{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Code, &c.DisciplineName, &c.CourseName, &c.ProfessorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, evaluation.ErrClassNotFound
		}
		return nil, fmt.Errorf("error getting class by ID: %w", err)
	}
	return &c, nil
}

func (r *PostgresEvaluationRepository) AttachClass(ctx context.Context, cycleID, classID int64) (bool, error) {
	query := `INSERT INTO cycle_classes (cycle_id, class_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, cycleID, classID)
	if err != nil {
		return false, fmt.Errorf("error attaching class to cycle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading attached rows: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresEvaluationRepository) DetachClass(ctx context.Context, cycleID, classID int64) error {
	query := `DELETE FROM cycle_classes WHERE cycle_id = $1 AND class_id = $2`
	if _, err := r.db.ExecContext(ctx, query, cycleID, classID); err != nil {
		return fmt.Errorf("error detaching class from cycle: %w", err)
	}
	return nil
}

func (r *PostgresEvaluationRepository) ListClassIDsByCycle(ctx context.Context, cycleID int64) ([]int64, error) {
	query := `SELECT class_id FROM cycle_classes WHERE cycle_id = $1 ORDER BY class_id`
	return r.queryIDs(ctx, query, cycleID)
}

func (r *PostgresEvaluationRepository) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ids: %w", err)
	}
	return ids, nil
}

// --- Enrollment Methods ---

func (r *PostgresEvaluationRepository) CountActiveEnrollments(ctx context.Context, classID int64) (int, error) {
	query := `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2`
	var n int
	if err := r.db.QueryRowContext(ctx, query, classID, evaluation.EnrollmentActive).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting active enrollments: %w", err)
	}
	return n, nil
}

func (r *PostgresEvaluationRepository) ListActiveStudents(ctx context.Context, classID int64) ([]*evaluation.Student, error) {
	query := `SELECT s.id, s.name, s.email
               FROM enrollments e JOIN students s ON s.id = e.student_id
               WHERE e.class_id = $1 AND e.status = $2
               ORDER BY s.id`
	rows, err := r.db.QueryContext(ctx, query, classID, evaluation.EnrollmentActive)
	if err != nil {
		return nil, fmt.Errorf("error querying active students: %w", err)
	}
	defer rows.Close()

	students := make([]*evaluation.Student, 0)
	for rows.Next() {
		s := evaluation.Student{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Email); err != nil {
			return nil, fmt.Errorf("error scanning student row: %w", err)
		}
		students = append(students, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating student rows: %w", err)
	}
	return students, nil
}

// --- Respondent Methods ---

func (r *PostgresEvaluationRepository) CountDistinctRespondents(ctx context.Context, cycleID, classID int64) (int, error) {
	query := `SELECT COUNT(DISTINCT r.student_id)
               FROM responses r JOIN evaluations ev ON ev.id = r.evaluation_id
               WHERE ev.cycle_id = $1 AND ev.class_id = $2 AND r.student_id IS NOT NULL`
	var n int
	if err := r.db.QueryRowContext(ctx, query, cycleID, classID).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting respondents: %w", err)
	}
	return n, nil
}

func (r *PostgresEvaluationRepository) ListRespondentIDs(ctx context.Context, cycleID, classID int64) ([]int64, error) {
	query := `SELECT DISTINCT r.student_id
               FROM responses r JOIN evaluations ev ON ev.id = r.evaluation_id
               WHERE ev.cycle_id = $1 AND ev.class_id = $2 AND r.student_id IS NOT NULL
               ORDER BY r.student_id`
	return r.queryIDs(ctx, query, cycleID, classID)
}

// --- Evaluation Methods ---

const evaluationColumns = `id, cycle_id, class_id, professor_id, discipline_name, created_at`

func scanEvaluation(row rowScanner) (*evaluation.Evaluation, error) {
	ev := evaluation.Evaluation{}
	if err := row.Scan(&ev.ID, &ev.CycleID, &ev.ClassID, &ev.ProfessorID, &ev.DisciplineName, &ev.CreatedAt); err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetOrCreateEvaluation fills ev.ID and ev.CreatedAt; the bool is true when a row was inserted.
func (r *PostgresEvaluationRepository) GetOrCreateEvaluation(ctx context.Context, ev *evaluation.Evaluation) (bool, error) {
	query := `INSERT INTO evaluations (cycle_id, class_id, professor_id, discipline_name)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (cycle_id, class_id, professor_id) DO NOTHING
               RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, ev.CycleID, ev.ClassID, ev.ProfessorID, ev.DisciplineName).
		Scan(&ev.ID, &ev.CreatedAt)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("error creating evaluation: %w", err)
	}

	query = `SELECT id, created_at FROM evaluations WHERE cycle_id = $1 AND class_id = $2 AND professor_id = $3`
	if err := r.db.QueryRowContext(ctx, query, ev.CycleID, ev.ClassID, ev.ProfessorID).Scan(&ev.ID, &ev.CreatedAt); err != nil {
		return false, fmt.Errorf("error getting existing evaluation: %w", err)
	}
	return false, nil
}

func (r *PostgresEvaluationRepository) DeleteUnansweredEvaluations(ctx context.Context, cycleID, classID int64) (int64, error) {
	query := `DELETE FROM evaluations ev
               WHERE ev.cycle_id = $1 AND ev.class_id = $2
                 AND NOT EXISTS (SELECT 1 FROM responses r WHERE r.evaluation_id = ev.id)`
	res, err := r.db.ExecContext(ctx, query, cycleID, classID)
	if err != nil {
		return 0, fmt.Errorf("error deleting unanswered evaluations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading deleted rows: %w", err)
	}
	return n, nil
}

func (r *PostgresEvaluationRepository) GetEvaluationByID(ctx context.Context, id int64) (*evaluation.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE id = $1`
	ev, err := scanEvaluation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, evaluation.ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("error getting evaluation by ID: %w", err)
	}
	return ev, nil
}

func (r *PostgresEvaluationRepository) ListEvaluations(ctx context.Context, f evaluation.Filter) ([]*evaluation.Evaluation, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ProfessorID != 0 {
		add("professor_id = $%d", f.ProfessorID)
	}
	if f.CycleID != 0 {
		add("cycle_id = $%d", f.CycleID)
	}
	if f.ExcludeCycleID != 0 {
		add("cycle_id <> $%d", f.ExcludeCycleID)
	}

	query := `SELECT ` + evaluationColumns + ` FROM evaluations`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying evaluations: %w", err)
	}
	defer rows.Close()

	evals := make([]*evaluation.Evaluation, 0)
	for rows.Next() {
		ev, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning evaluation row: %w", err)
		}
		evals = append(evals, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evaluation rows: %w", err)
	}
	return evals, nil
}

// --- Response Methods ---

const responseColumns = `id, evaluation_id, student_id, question_id, kind, answer_option, text_answer, created_at`

func scanResponse(row rowScanner) (*evaluation.Response, error) {
	resp := evaluation.Response{}
	err := row.Scan(&resp.ID, &resp.EvaluationID, &resp.StudentID, &resp.QuestionID,
		&resp.Kind, &resp.Option, &resp.Text, &resp.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *PostgresEvaluationRepository) CreateResponse(ctx context.Context, resp *evaluation.Response) error {
	query := `INSERT INTO responses (evaluation_id, student_id, question_id, kind, answer_option, text_answer)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		resp.EvaluationID, resp.StudentID, resp.QuestionID, resp.Kind, resp.Option, resp.Text,
	).Scan(&resp.ID, &resp.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating response: %w", err)
	}
	return nil
}

func (r *PostgresEvaluationRepository) GetResponseByID(ctx context.Context, id int64) (*evaluation.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM responses WHERE id = $1`
	resp, err := scanResponse(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, evaluation.ErrResponseNotFound
		}
		return nil, fmt.Errorf("error getting response by ID: %w", err)
	}
	return resp, nil
}

func (r *PostgresEvaluationRepository) DeleteResponse(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM responses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading deleted rows: %w", err)
	}
	if n == 0 {
		return evaluation.ErrResponseNotFound
	}
	return nil
}

func (r *PostgresEvaluationRepository) ListResponsesByEvaluations(ctx context.Context, evaluationIDs []int64) ([]*evaluation.Response, error) {
	if len(evaluationIDs) == 0 {
		return []*evaluation.Response{}, nil
	}
	query := `SELECT ` + responseColumns + ` FROM responses WHERE evaluation_id = ANY($1) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(evaluationIDs))
	if err != nil {
		return nil, fmt.Errorf("error querying responses: %w", err)
	}
	defer rows.Close()

	responses := make([]*evaluation.Response, 0)
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning response row: %w", err)
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating response rows: %w", err)
	}
	return responses, nil
}

// --- Closing Reminder Methods ---

func (r *PostgresEvaluationRepository) HasClosingReminder(ctx context.Context, cycleID int64, kind string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM closing_reminders WHERE cycle_id = $1 AND kind = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, cycleID, kind).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking closing reminder: %w", err)
	}
	return exists, nil
}

func (r *PostgresEvaluationRepository) RecordClosingReminder(ctx context.Context, cycleID int64, kind string, total int) error {
	query := `INSERT INTO closing_reminders (cycle_id, kind, total_sent) VALUES ($1, $2, $3)
               ON CONFLICT (cycle_id, kind) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, cycleID, kind, total); err != nil {
		return fmt.Errorf("error recording closing reminder: %w", err)
	}
	return nil
}

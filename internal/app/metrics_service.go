package app

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"evaluation_reminders/internal/domain/cache"
	"evaluation_reminders/internal/domain/evaluation"
	"evaluation_reminders/internal/domain/reminder"

	"github.com/sirupsen/logrus"
)

const DefaultMetricsTTL = 15 * time.Minute

// ProfessorMetrics is the rollup of a professor's evaluations, optionally
// restricted to one cycle (CycleID == 0 means all cycles).
type ProfessorMetrics struct {
	ProfessorID          int64                     `json:"professor_id"`
	CycleID              int64                     `json:"cycle_id,omitempty"`
	RespondedEvaluations int                       `json:"responded_evaluations"`
	TotalRespondents     int                       `json:"total_respondents"`
	TotalEligible        int                       `json:"total_eligible"`
	ResponseRate         reminder.Percent          `json:"response_rate"`
	CycleAverage         sql.NullFloat64           `json:"-"`
	Classification       evaluation.Classification `json:"classification"`
	TotalEvaluations     int                       `json:"total_evaluations"`
}

// EvaluationSummary describes one evaluation inside a professor history.
type EvaluationSummary struct {
	Evaluation     *evaluation.Evaluation
	TotalResponses int
	TotalStudents  int
	Average        sql.NullFloat64
	Classification evaluation.Classification
}

// CycleHistory groups a professor's metrics and evaluations for one cycle.
type CycleHistory struct {
	Cycle       *evaluation.Cycle
	Metrics     ProfessorMetrics
	Evaluations []EvaluationSummary
}

// ProfessorHistory is the per-cycle history of a professor, newest cycle first.
type ProfessorHistory struct {
	ProfessorID          int64
	Cycles               []CycleHistory
	TotalCycles          int
	TotalEvaluations     int
	RespondedEvaluations int
	OverallAverage       sql.NullFloat64
	Classification       evaluation.Classification
}

// HistoricalAverage is a professor's mean across cycles.
type HistoricalAverage struct {
	Average          sql.NullFloat64
	Classification   evaluation.Classification
	TotalCycles      int
	TotalEvaluations int
}

func metricsKey(professorID, cycleID int64) string {
	scope := "all"
	if cycleID != 0 {
		scope = strconv.FormatInt(cycleID, 10)
	}
	return fmt.Sprintf("metrics_prof:%d:%s", professorID, scope)
}

func historyKey(professorID int64) string {
	return fmt.Sprintf("history_prof:%d", professorID)
}

// MetricsService computes professor aggregates and caches them.
//
// Every professor has a generation number that InvalidateProfessor bumps. A
// computation only populates the cache if the generation is unchanged, so a
// value computed before a write can never be stored after its eviction.
type MetricsService struct {
	evalRepo evaluation.Repository
	cache    cache.Cache
	ttl      time.Duration
	logger   *logrus.Entry

	mu          sync.Mutex
	generations map[int64]uint64
}

func NewMetricsService(er evaluation.Repository, c cache.Cache, ttl time.Duration, logger *logrus.Entry) *MetricsService {
	if ttl <= 0 {
		ttl = DefaultMetricsTTL
	}
	return &MetricsService{
		evalRepo:    er,
		cache:       c,
		ttl:         ttl,
		logger:      logger.WithField("component", "metrics_service"),
		generations: make(map[int64]uint64),
	}
}

func (s *MetricsService) generation(professorID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[professorID]
}

func (s *MetricsService) storeIfCurrent(professorID int64, gen uint64, key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[professorID] != gen {
		return
	}
	s.cache.Set(key, value, s.ttl)
}

// InvalidateProfessor evicts the cycle-scoped, "all" and history entries of
// the professor. cycleID may be zero when only the global entries are affected.
func (s *MetricsService) InvalidateProfessor(professorID, cycleID int64) {
	keys := []string{metricsKey(professorID, 0), historyKey(professorID)}
	if cycleID != 0 {
		keys = append(keys, metricsKey(professorID, cycleID))
	}

	s.mu.Lock()
	s.generations[professorID]++
	s.cache.Delete(keys...)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"professor_id": professorID, "cycle_id": cycleID, "keys": keys}).Debug("Metrics cache invalidated")
}

// ProfessorMetrics returns the cached rollup for (professorID, cycleID),
// computing it on a miss. cycleID == 0 means all cycles.
func (s *MetricsService) ProfessorMetrics(ctx context.Context, professorID, cycleID int64) (ProfessorMetrics, error) {
	key := metricsKey(professorID, cycleID)
	if v, ok := s.cache.Get(key); ok {
		if m, ok := v.(ProfessorMetrics); ok {
			return m, nil
		}
	}

	gen := s.generation(professorID)
	m, err := s.computeMetrics(ctx, professorID, cycleID)
	if err != nil {
		return ProfessorMetrics{}, err
	}
	s.storeIfCurrent(professorID, gen, key, m)
	return m, nil
}

// ProfessorHistory returns the professor's metrics per cycle, newest first.
func (s *MetricsService) ProfessorHistory(ctx context.Context, professorID int64) (*ProfessorHistory, error) {
	key := historyKey(professorID)
	if v, ok := s.cache.Get(key); ok {
		if h, ok := v.(*ProfessorHistory); ok {
			return h, nil
		}
	}

	gen := s.generation(professorID)
	h, err := s.computeHistory(ctx, professorID)
	if err != nil {
		return nil, err
	}
	s.storeIfCurrent(professorID, gen, key, h)
	return h, nil
}

// HistoricalAverage averages every answered evaluation of the professor,
// skipping excludeCycleID when it is not zero. Not cached.
func (s *MetricsService) HistoricalAverage(ctx context.Context, professorID, excludeCycleID int64) (HistoricalAverage, error) {
	evals, err := s.evalRepo.ListEvaluations(ctx, evaluation.Filter{ProfessorID: professorID, ExcludeCycleID: excludeCycleID})
	if err != nil {
		return HistoricalAverage{}, fmt.Errorf("failed to list evaluations of professor %d: %w", professorID, err)
	}
	byEval, err := s.responsesByEvaluation(ctx, evals)
	if err != nil {
		return HistoricalAverage{}, err
	}

	res := HistoricalAverage{Classification: evaluation.ClassNoData}
	cycles := make(map[int64]struct{})
	var averages []float64
	for _, ev := range evals {
		responses := byEval[ev.ID]
		if len(responses) == 0 {
			continue
		}
		res.TotalEvaluations++
		if avg, ok := EvaluationAverage(responses); ok {
			averages = append(averages, avg)
			cycles[ev.CycleID] = struct{}{}
		}
	}
	res.TotalCycles = len(cycles)
	if len(averages) > 0 {
		avg := round4(mean(averages))
		res.Average = sql.NullFloat64{Float64: avg, Valid: true}
		res.Classification = evaluation.Classify(avg)
	}
	return res, nil
}

func (s *MetricsService) computeMetrics(ctx context.Context, professorID, cycleID int64) (ProfessorMetrics, error) {
	evals, err := s.evalRepo.ListEvaluations(ctx, evaluation.Filter{ProfessorID: professorID, CycleID: cycleID})
	if err != nil {
		return ProfessorMetrics{}, fmt.Errorf("failed to list evaluations of professor %d: %w", professorID, err)
	}
	byEval, err := s.responsesByEvaluation(ctx, evals)
	if err != nil {
		return ProfessorMetrics{}, err
	}
	enrollments := make(map[int64]int)
	return s.rollup(ctx, professorID, cycleID, evals, byEval, enrollments)
}

// rollup aggregates already loaded evaluations. enrollments memoizes active
// enrollment counts per class across calls.
func (s *MetricsService) rollup(
	ctx context.Context,
	professorID, cycleID int64,
	evals []*evaluation.Evaluation,
	byEval map[int64][]*evaluation.Response,
	enrollments map[int64]int,
) (ProfessorMetrics, error) {
	m := ProfessorMetrics{
		ProfessorID:      professorID,
		CycleID:          cycleID,
		Classification:   evaluation.ClassNoData,
		TotalEvaluations: len(evals),
	}
	if len(evals) == 0 {
		return m, nil
	}

	type pair struct{ cycleID, classID int64 }
	pairs := make(map[pair]struct{})
	respondents := make(map[int64]struct{})
	var averages []float64

	for _, ev := range evals {
		responses := byEval[ev.ID]
		if len(responses) > 0 {
			m.RespondedEvaluations++
			for _, r := range responses {
				if r.StudentID.Valid {
					respondents[r.StudentID.Int64] = struct{}{}
				}
			}
			if avg, ok := EvaluationAverage(responses); ok {
				averages = append(averages, avg)
			}
		}

		p := pair{ev.CycleID, ev.ClassID}
		if _, seen := pairs[p]; seen {
			continue
		}
		pairs[p] = struct{}{}
		n, ok := enrollments[ev.ClassID]
		if !ok {
			var err error
			n, err = s.evalRepo.CountActiveEnrollments(ctx, ev.ClassID)
			if err != nil {
				return ProfessorMetrics{}, fmt.Errorf("failed to count enrollments for class %d: %w", ev.ClassID, err)
			}
			enrollments[ev.ClassID] = n
		}
		m.TotalEligible += n
	}

	m.TotalRespondents = len(respondents)
	m.ResponseRate = reminder.RatePercent(m.TotalRespondents, m.TotalEligible)
	if len(averages) > 0 {
		avg := round4(mean(averages))
		m.CycleAverage = sql.NullFloat64{Float64: avg, Valid: true}
		m.Classification = evaluation.Classify(avg)
	}
	return m, nil
}

func (s *MetricsService) computeHistory(ctx context.Context, professorID int64) (*ProfessorHistory, error) {
	evals, err := s.evalRepo.ListEvaluations(ctx, evaluation.Filter{ProfessorID: professorID})
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations of professor %d: %w", professorID, err)
	}
	byEval, err := s.responsesByEvaluation(ctx, evals)
	if err != nil {
		return nil, err
	}

	byCycle := make(map[int64][]*evaluation.Evaluation)
	var cycleIDs []int64
	for _, ev := range evals {
		if _, ok := byCycle[ev.CycleID]; !ok {
			cycleIDs = append(cycleIDs, ev.CycleID)
		}
		byCycle[ev.CycleID] = append(byCycle[ev.CycleID], ev)
	}

	cycles, err := s.evalRepo.ListCyclesByIDs(ctx, cycleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles of professor %d: %w", professorID, err)
	}
	sort.SliceStable(cycles, func(i, j int) bool {
		if !cycles[i].StartDate.Equal(cycles[j].StartDate) {
			return cycles[i].StartDate.After(cycles[j].StartDate)
		}
		return cycles[i].ID > cycles[j].ID
	})

	h := &ProfessorHistory{ProfessorID: professorID, Classification: evaluation.ClassNoData}
	enrollments := make(map[int64]int)
	var averages []float64

	for _, cycle := range cycles {
		cycleEvals := byCycle[cycle.ID]
		metrics, err := s.rollup(ctx, professorID, cycle.ID, cycleEvals, byEval, enrollments)
		if err != nil {
			return nil, err
		}

		ch := CycleHistory{Cycle: cycle, Metrics: metrics}
		for _, ev := range cycleEvals {
			responses := byEval[ev.ID]
			sum := EvaluationSummary{
				Evaluation:     ev,
				TotalResponses: len(responses),
				TotalStudents:  enrollments[ev.ClassID],
				Classification: evaluation.ClassNoData,
			}
			if avg, ok := EvaluationAverage(responses); ok {
				sum.Average = sql.NullFloat64{Float64: avg, Valid: true}
				sum.Classification = evaluation.Classify(avg)
				averages = append(averages, avg)
				h.RespondedEvaluations++
			}
			ch.Evaluations = append(ch.Evaluations, sum)
			h.TotalEvaluations++
		}
		h.Cycles = append(h.Cycles, ch)
	}

	h.TotalCycles = len(h.Cycles)
	if len(averages) > 0 {
		avg := round4(mean(averages))
		h.OverallAverage = sql.NullFloat64{Float64: avg, Valid: true}
		h.Classification = evaluation.Classify(avg)
	}
	return h, nil
}

func (s *MetricsService) responsesByEvaluation(ctx context.Context, evals []*evaluation.Evaluation) (map[int64][]*evaluation.Response, error) {
	byEval := make(map[int64][]*evaluation.Response, len(evals))
	if len(evals) == 0 {
		return byEval, nil
	}
	ids := make([]int64, 0, len(evals))
	for _, ev := range evals {
		ids = append(ids, ev.ID)
	}
	responses, err := s.evalRepo.ListResponsesByEvaluations(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	for _, r := range responses {
		byEval[r.EvaluationID] = append(byEval[r.EvaluationID], r)
	}
	return byEval, nil
}

// EvaluationAverage is the mean of per-question weighted averages over the
// multiple-choice answers. Returns false when no answer carries a weight.
func EvaluationAverage(responses []*evaluation.Response) (float64, bool) {
	type acc struct {
		sum   float64
		count int
	}
	questions := make(map[int64]*acc)
	for _, r := range responses {
		if r.Kind != evaluation.QuestionMultipleChoice {
			continue
		}
		w, ok := r.Option.Weight()
		if !ok {
			continue
		}
		a := questions[r.QuestionID]
		if a == nil {
			a = &acc{}
			questions[r.QuestionID] = a
		}
		a.sum += w
		a.count++
	}
	if len(questions) == 0 {
		return 0, false
	}

	qAverages := make([]float64, 0, len(questions))
	for _, a := range questions {
		qAverages = append(qAverages, a.sum/float64(a.count))
	}
	sort.Float64s(qAverages)
	return mean(qAverages), true
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

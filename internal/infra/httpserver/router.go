// Package httpserver exposes health, Prometheus metrics and the professor
// aggregates over HTTP.
package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"evaluation_reminders/internal/app"
	"evaluation_reminders/internal/domain/evaluation"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type MetricsReader interface {
	ProfessorMetrics(ctx context.Context, professorID, cycleID int64) (app.ProfessorMetrics, error)
	ProfessorHistory(ctx context.Context, professorID int64) (*app.ProfessorHistory, error)
	HistoricalAverage(ctx context.Context, professorID, excludeCycleID int64) (app.HistoricalAverage, error)
}

type ResponseWriter interface {
	Record(ctx context.Context, r *evaluation.Response) error
	Delete(ctx context.Context, responseID int64) error
}

// Deps are the collaborators mounted on the router. Nil fields disable their routes.
type Deps struct {
	DB             Pinger
	MetricsHandler http.Handler
	Metrics        MetricsReader
	Responses      ResponseWriter
	Logger         *logrus.Entry
}

const healthTimeout = 2 * time.Second

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if d.DB != nil {
			ctx, cancel := context.WithTimeout(req.Context(), healthTimeout)
			defer cancel()
			if err := d.DB.PingContext(ctx); err != nil {
				if d.Logger != nil {
					d.Logger.WithError(err).Warn("Health check failed")
				}
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler)
	}

	if d.Metrics != nil {
		h := &professorHandler{metrics: d.Metrics, logger: d.Logger}
		r.Route("/professors/{id}", func(r chi.Router) {
			r.Get("/metrics", h.Metrics)
			r.Get("/history", h.History)
			r.Get("/historical-average", h.HistoricalAverage)
		})
	}

	if d.Responses != nil {
		h := &responseHandler{responses: d.Responses, logger: d.Logger}
		r.Post("/responses", h.Create)
		r.Delete("/responses/{id}", h.Delete)
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(req *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
}

func queryID(req *http.Request, name string) (int64, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func nullable(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// writeError maps not-found errors to 404 and everything else to 500.
func writeError(w http.ResponseWriter, logger *logrus.Entry, err error) {
	if app.IsNotFound(err) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if logger != nil {
		logger.WithError(err).Error("Request failed")
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

type professorHandler struct {
	metrics MetricsReader
	logger  *logrus.Entry
}

type metricsView struct {
	app.ProfessorMetrics
	CycleAverage *float64 `json:"cycle_average"`
}

func (h *professorHandler) Metrics(w http.ResponseWriter, req *http.Request) {
	professorID, err := pathID(req)
	if err != nil {
		http.Error(w, "invalid professor id", http.StatusBadRequest)
		return
	}
	cycleID, err := queryID(req, "cycle_id")
	if err != nil {
		http.Error(w, "invalid cycle_id", http.StatusBadRequest)
		return
	}

	m, err := h.metrics.ProfessorMetrics(req.Context(), professorID, cycleID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, metricsView{ProfessorMetrics: m, CycleAverage: nullable(m.CycleAverage)})
}

type evaluationView struct {
	EvaluationID   int64                     `json:"evaluation_id"`
	ClassID        int64                     `json:"class_id"`
	Discipline     string                    `json:"discipline"`
	TotalResponses int                       `json:"total_responses"`
	TotalStudents  int                       `json:"total_students"`
	Average        *float64                  `json:"average"`
	Classification evaluation.Classification `json:"classification"`
}

type cycleView struct {
	CycleID     int64            `json:"cycle_id"`
	Name        string           `json:"name"`
	StartDate   string           `json:"start_date"`
	EndDate     string           `json:"end_date"`
	Metrics     metricsView      `json:"metrics"`
	Evaluations []evaluationView `json:"evaluations"`
}

type historyView struct {
	ProfessorID          int64                     `json:"professor_id"`
	Cycles               []cycleView               `json:"cycles"`
	TotalCycles          int                       `json:"total_cycles"`
	TotalEvaluations     int                       `json:"total_evaluations"`
	RespondedEvaluations int                       `json:"responded_evaluations"`
	OverallAverage       *float64                  `json:"overall_average"`
	Classification       evaluation.Classification `json:"classification"`
}

func (h *professorHandler) History(w http.ResponseWriter, req *http.Request) {
	professorID, err := pathID(req)
	if err != nil {
		http.Error(w, "invalid professor id", http.StatusBadRequest)
		return
	}

	hist, err := h.metrics.ProfessorHistory(req.Context(), professorID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	view := historyView{
		ProfessorID:          hist.ProfessorID,
		Cycles:               make([]cycleView, 0, len(hist.Cycles)),
		TotalCycles:          hist.TotalCycles,
		TotalEvaluations:     hist.TotalEvaluations,
		RespondedEvaluations: hist.RespondedEvaluations,
		OverallAverage:       nullable(hist.OverallAverage),
		Classification:       hist.Classification,
	}
	for _, c := range hist.Cycles {
		cv := cycleView{
			CycleID:     c.Cycle.ID,
			Name:        c.Cycle.Name,
			StartDate:   c.Cycle.StartDate.Format("2006-01-02"),
			EndDate:     c.Cycle.EndDate.Format("2006-01-02"),
			Metrics:     metricsView{ProfessorMetrics: c.Metrics, CycleAverage: nullable(c.Metrics.CycleAverage)},
			Evaluations: make([]evaluationView, 0, len(c.Evaluations)),
		}
		for _, e := range c.Evaluations {
			cv.Evaluations = append(cv.Evaluations, evaluationView{
				EvaluationID:   e.Evaluation.ID,
				ClassID:        e.Evaluation.ClassID,
				Discipline:     e.Evaluation.DisciplineName,
				TotalResponses: e.TotalResponses,
				TotalStudents:  e.TotalStudents,
				Average:        nullable(e.Average),
				Classification: e.Classification,
			})
		}
		view.Cycles = append(view.Cycles, cv)
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *professorHandler) HistoricalAverage(w http.ResponseWriter, req *http.Request) {
	professorID, err := pathID(req)
	if err != nil {
		http.Error(w, "invalid professor id", http.StatusBadRequest)
		return
	}
	exclude, err := queryID(req, "exclude_cycle_id")
	if err != nil {
		http.Error(w, "invalid exclude_cycle_id", http.StatusBadRequest)
		return
	}

	avg, err := h.metrics.HistoricalAverage(req.Context(), professorID, exclude)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"average":           nullable(avg.Average),
		"classification":    avg.Classification,
		"total_cycles":      avg.TotalCycles,
		"total_evaluations": avg.TotalEvaluations,
	})
}

type responseHandler struct {
	responses ResponseWriter
	logger    *logrus.Entry
}

type createResponseReq struct {
	EvaluationID int64  `json:"evaluation_id"`
	StudentID    *int64 `json:"student_id"`
	QuestionID   int64  `json:"question_id"`
	Kind         string `json:"kind"`
	Option       string `json:"option"`
	Text         string `json:"text"`
}

func (h *responseHandler) Create(w http.ResponseWriter, req *http.Request) {
	var body createResponseReq
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	kind := evaluation.QuestionKind(body.Kind)
	if kind != evaluation.QuestionMultipleChoice && kind != evaluation.QuestionText {
		http.Error(w, "kind must be MULTIPLE_CHOICE or TEXT", http.StatusBadRequest)
		return
	}

	resp := &evaluation.Response{
		EvaluationID: body.EvaluationID,
		QuestionID:   body.QuestionID,
		Kind:         kind,
		Option:       evaluation.AnswerOption(body.Option),
		Text:         body.Text,
	}
	if body.StudentID != nil {
		resp.StudentID = sql.NullInt64{Int64: *body.StudentID, Valid: true}
	}

	if err := h.responses.Record(req.Context(), resp); err != nil {
		if errors.Is(err, app.ErrUnknownOption) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": resp.ID})
}

func (h *responseHandler) Delete(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		http.Error(w, "invalid response id", http.StatusBadRequest)
		return
	}
	if err := h.responses.Delete(req.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

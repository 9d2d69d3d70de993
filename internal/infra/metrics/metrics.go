// Package metrics exposes batch-run counters in the Prometheus format.
package metrics

import (
	"net/http"

	"evaluation_reminders/internal/app"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evaluation_reminders"

// Recorder turns run summaries into Prometheus series. It owns its registry
// so tests and multiple instances do not collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	emails        *prometheus.CounterVec
	lastRun       *prometheus.GaugeVec
	runDuration   prometheus.Histogram
	closingEmails *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "Reminder batch runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Reminder jobs handled by batch runs, by result.",
		}, []string{"result"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Reminder e-mails by delivery status.",
		}, []string{"status"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last run of each kind finished.",
		}, []string{"kind"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_run_duration_seconds",
			Help:      "Wall time of reminder batch runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		closingEmails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "closing_emails_total",
			Help:      "Closing-soon reminder e-mails by delivery status.",
		}, []string{"status"}),
	}

	r.registry.MustRegister(
		r.runs, r.jobs, r.emails, r.lastRun, r.runDuration, r.closingEmails,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func mode(dryRun bool) string {
	if dryRun {
		return "dry_run"
	}
	return "live"
}

// ObserveBatch records one RunBatch result. runErr is the error RunBatch returned.
func (r *Recorder) ObserveBatch(s *app.RunSummary, runErr error) {
	if s == nil {
		return
	}
	outcome := "ok"
	switch {
	case runErr != nil:
		outcome = "error"
	case len(s.Errors) > 0:
		outcome = "partial"
	}
	r.runs.WithLabelValues(mode(s.DryRun), outcome).Inc()

	r.jobs.WithLabelValues("processed").Add(float64(s.JobsProcessed))
	r.jobs.WithLabelValues("skipped").Add(float64(s.JobsSkipped))
	r.jobs.WithLabelValues("completed").Add(float64(s.JobsCompleted))
	r.jobs.WithLabelValues("failed").Add(float64(s.JobsFailed))

	r.emails.WithLabelValues("sent").Add(float64(s.EmailsSent))
	r.emails.WithLabelValues("failed").Add(float64(s.EmailsFailed))
	r.emails.WithLabelValues("skipped").Add(float64(s.EmailsSkipped))
	r.emails.WithLabelValues("would_send").Add(float64(s.WouldSend))

	if !s.FinishedAt.IsZero() {
		r.lastRun.WithLabelValues("batch").Set(float64(s.FinishedAt.Unix()))
		r.runDuration.Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	}
}

// ObserveClosing records one closing-soon reminder run.
func (r *Recorder) ObserveClosing(s *app.ClosingSummary) {
	if s == nil {
		return
	}
	r.closingEmails.WithLabelValues("sent").Add(float64(s.EmailsSent))
	r.closingEmails.WithLabelValues("failed").Add(float64(s.EmailsFailed))
	r.closingEmails.WithLabelValues("no_email").Add(float64(s.NoEmail))
	r.closingEmails.WithLabelValues("would_send").Add(float64(s.WouldSend))
	r.lastRun.WithLabelValues("closing").SetToCurrentTime()
}

// Handler serves the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"evaluation_reminders/internal/app"
	"evaluation_reminders/internal/domain/reminder"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const manualRunTimeout = 30 * time.Minute

const msgUnauthorized = "Erro: você não tem permissão para executar este comando."

// JobAdmin is the subset of *app.AdminService the operator bot drives.
type JobAdmin interface {
	ListJobs(ctx context.Context, statuses ...reminder.JobStatus) ([]*reminder.Job, error)
	PauseJob(ctx context.Context, jobID int64) (*reminder.Job, error)
	ResumeJob(ctx context.Context, jobID int64) (*reminder.Job, error)
	RetryJob(ctx context.Context, jobID int64) (*reminder.Job, error)
}

// OperatorCommands implements the operator commands independently of telebot;
// each method returns the reply text.
type OperatorCommands struct {
	admin   JobAdmin
	runner  app.ReminderService
	observe func(*app.RunSummary, error)
	logger  *logrus.Entry
}

// NewOperatorCommands builds the command set. observe, when not nil, receives
// the summary of every manual /run.
func NewOperatorCommands(admin JobAdmin, runner app.ReminderService, observe func(*app.RunSummary, error), logger *logrus.Entry) *OperatorCommands {
	return &OperatorCommands{admin: admin, runner: runner, observe: observe, logger: logger}
}

func parseJobID(args []string, usage string) (int64, string) {
	if len(args) != 1 {
		return 0, "Formato inválido. Use: " + usage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "Erro: o ID do job deve ser um número positivo."
	}
	return id, ""
}

func formatJob(j *reminder.Job) string {
	line := fmt.Sprintf("#%d ciclo %d turma %d: %s, taxa %s%%, enviados %d, falhas %d, rodadas %d",
		j.ID, j.CycleID, j.ClassID, j.Status, j.ResponseRate, j.TotalSent, j.TotalFailed, j.RoundsExecuted)
	if j.NextRunAt.Valid && (j.Status == reminder.JobStatusPending || j.Status == reminder.JobStatusRunning) {
		line += ", próxima " + j.NextRunAt.Time.Format("02/01 15:04")
	}
	if j.ErrorMessage != "" {
		line += "\n   erro: " + j.ErrorMessage
	}
	return line
}

func statusOf(j *reminder.Job) reminder.JobStatus {
	if j == nil {
		return "?"
	}
	return j.Status
}

// Jobs lists jobs, optionally filtered by status names ("/jobs failed paused").
func (o *OperatorCommands) Jobs(ctx context.Context, args []string) string {
	statuses := make([]reminder.JobStatus, 0, len(args))
	for _, a := range args {
		statuses = append(statuses, reminder.JobStatus(strings.ToUpper(a)))
	}

	jobs, err := o.admin.ListJobs(ctx, statuses...)
	if err != nil {
		o.logger.WithError(err).Error("Failed to list reminder jobs")
		return fmt.Sprintf("Erro ao listar jobs: %s", err.Error())
	}
	if len(jobs) == 0 {
		return "Nenhum job encontrado."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- Jobs (%d) ---\n", len(jobs))
	for _, j := range jobs {
		b.WriteString(formatJob(j))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *OperatorCommands) lifecycle(ctx context.Context, args []string, usage, done string,
	action func(context.Context, int64) (*reminder.Job, error)) string {
	id, problem := parseJobID(args, usage)
	if problem != "" {
		return problem
	}

	job, err := action(ctx, id)
	if err != nil {
		logWithError := o.logger.WithError(err).WithField("job_id", id)
		switch {
		case errors.Is(err, reminder.ErrJobNotFound):
			return fmt.Sprintf("Job %d não encontrado.", id)
		case errors.Is(err, app.ErrJobCompleted):
			return fmt.Sprintf("Job %d já está concluído.", id)
		case errors.Is(err, app.ErrJobNotPaused):
			return fmt.Sprintf("Job %d não está pausado (status %s).", id, statusOf(job))
		case errors.Is(err, app.ErrJobNotFailed):
			return fmt.Sprintf("Job %d não está com falha (status %s).", id, statusOf(job))
		default:
			logWithError.Error("Job lifecycle command failed")
			return fmt.Sprintf("Erro ao atualizar o job %d: %s", id, err.Error())
		}
	}
	return fmt.Sprintf("Job %d %s.\n%s", id, done, formatJob(job))
}

func (o *OperatorCommands) Pause(ctx context.Context, args []string) string {
	return o.lifecycle(ctx, args, "/pause <job_id>", "pausado", o.admin.PauseJob)
}

func (o *OperatorCommands) Resume(ctx context.Context, args []string) string {
	return o.lifecycle(ctx, args, "/resume <job_id>", "retomado", o.admin.ResumeJob)
}

func (o *OperatorCommands) Retry(ctx context.Context, args []string) string {
	return o.lifecycle(ctx, args, "/retry <job_id>", "reagendado", o.admin.RetryJob)
}

// Run triggers a batch: "/run", "/run dry", "/run <job_id>" or "/run dry <job_id>".
func (o *OperatorCommands) Run(ctx context.Context, args []string) string {
	opts := app.RunOptions{}
	for _, a := range args {
		if strings.EqualFold(a, "dry") {
			opts.DryRun = true
			continue
		}
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 || opts.ForceJobID != 0 {
			return "Formato inválido. Use: /run [dry] [job_id]"
		}
		opts.ForceJobID = id
	}

	ctx, cancel := context.WithTimeout(ctx, manualRunTimeout)
	defer cancel()

	o.logger.WithFields(logrus.Fields{"dry_run": opts.DryRun, "force_job_id": opts.ForceJobID}).Info("Manual reminder batch requested")
	summary, err := o.runner.RunBatch(ctx, opts)
	if o.observe != nil {
		o.observe(summary, err)
	}
	return FormatRunSummary(summary, err)
}

// RegisterOperatorHandlers registers the operator commands. Only operatorID may use them.
func RegisterOperatorHandlers(ctx context.Context, b *telebot.Bot, cmds *OperatorCommands, operatorID int64, baseLogger *logrus.Entry) {
	handle := func(command string, fn func(context.Context, []string) string) {
		b.Handle(command, func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   command,
				"sender_id": c.Sender().ID,
			})
			handlerLogger.Info("Command received")

			if c.Sender().ID != operatorID {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(msgUnauthorized)
			}
			return c.Send(fn(ctx, c.Args()))
		})
	}

	handle("/jobs", cmds.Jobs)
	handle("/pause", cmds.Pause)
	handle("/resume", cmds.Resume)
	handle("/retry", cmds.Retry)
	handle("/run", cmds.Run)
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"evaluation_reminders/internal/app"
	"evaluation_reminders/internal/domain/reminder"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeClient struct {
	sent []sentMessage
	err  error
}

func (f *fakeClient) SendText(chatID int64, text string) error {
	f.sent = append(f.sent, sentMessage{chatID, text})
	return f.err
}

func (f *fakeClient) SendMarkdown(chatID int64, text string) error {
	return f.SendText(chatID, text)
}

type fakeAdmin struct {
	jobs     map[int64]*reminder.Job
	statuses []reminder.JobStatus
}

func (f *fakeAdmin) ListJobs(_ context.Context, statuses ...reminder.JobStatus) ([]*reminder.Job, error) {
	f.statuses = statuses
	for _, s := range statuses {
		if !s.IsValid() {
			return nil, fmt.Errorf("unknown job status %q", s)
		}
	}
	var out []*reminder.Job
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeAdmin) get(id int64) (*reminder.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, reminder.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeAdmin) PauseJob(_ context.Context, id int64) (*reminder.Job, error) {
	j, err := f.get(id)
	if err != nil {
		return nil, err
	}
	if j.Status == reminder.JobStatusCompleted {
		return j, app.ErrJobCompleted
	}
	j.Status = reminder.JobStatusPaused
	return j, nil
}

func (f *fakeAdmin) ResumeJob(_ context.Context, id int64) (*reminder.Job, error) {
	j, err := f.get(id)
	if err != nil {
		return nil, err
	}
	if j.Status != reminder.JobStatusPaused {
		return j, app.ErrJobNotPaused
	}
	j.Status = reminder.JobStatusPending
	return j, nil
}

func (f *fakeAdmin) RetryJob(_ context.Context, id int64) (*reminder.Job, error) {
	j, err := f.get(id)
	if err != nil {
		return nil, err
	}
	if j.Status != reminder.JobStatusFailed {
		return j, app.ErrJobNotFailed
	}
	j.Status = reminder.JobStatusPending
	j.ErrorMessage = ""
	return j, nil
}

type fakeRunner struct {
	opts app.RunOptions
}

func (f *fakeRunner) RunBatch(_ context.Context, opts app.RunOptions) (*app.RunSummary, error) {
	f.opts = opts
	return &app.RunSummary{DryRun: opts.DryRun, JobsSelected: 1, JobsProcessed: 1, WouldSend: 5, EmailsSent: 5}, nil
}

func testEntry() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

func newCommands() (*OperatorCommands, *fakeAdmin, *fakeRunner, *[]*app.RunSummary) {
	admin := &fakeAdmin{jobs: map[int64]*reminder.Job{
		1: {ID: 1, CycleID: 2, ClassID: 3, Status: reminder.JobStatusPending, ResponseRate: reminder.Percent(1250)},
		2: {ID: 2, CycleID: 2, ClassID: 4, Status: reminder.JobStatusFailed, ErrorMessage: "smtp down"},
		3: {ID: 3, CycleID: 2, ClassID: 5, Status: reminder.JobStatusCompleted},
	}}
	runner := &fakeRunner{}
	var observed []*app.RunSummary
	cmds := NewOperatorCommands(admin, runner, func(s *app.RunSummary, _ error) {
		observed = append(observed, s)
	}, testEntry())
	return cmds, admin, runner, &observed
}

func TestJobsCommand(t *testing.T) {
	cmds, admin, _, _ := newCommands()
	ctx := context.Background()

	reply := cmds.Jobs(ctx, []string{"failed"})
	assert.Equal(t, []reminder.JobStatus{reminder.JobStatusFailed}, admin.statuses)
	assert.Contains(t, reply, "--- Jobs (3) ---")
	assert.Contains(t, reply, "taxa 12.50%")
	assert.Contains(t, reply, "erro: smtp down")

	reply = cmds.Jobs(ctx, []string{"weird"})
	assert.Contains(t, reply, "Erro ao listar jobs")
}

func TestLifecycleCommands(t *testing.T) {
	cmds, admin, _, _ := newCommands()
	ctx := context.Background()

	assert.Contains(t, cmds.Pause(ctx, []string{"1"}), "Job 1 pausado.")
	assert.Equal(t, reminder.JobStatusPaused, admin.jobs[1].Status)
	assert.Contains(t, cmds.Resume(ctx, []string{"1"}), "Job 1 retomado.")

	assert.Contains(t, cmds.Retry(ctx, []string{"2"}), "Job 2 reagendado.")
	assert.Empty(t, admin.jobs[2].ErrorMessage)

	assert.Equal(t, "Job 3 já está concluído.", cmds.Pause(ctx, []string{"3"}))
	assert.Equal(t, "Job 3 não está pausado (status COMPLETED).", cmds.Resume(ctx, []string{"3"}))
	assert.Equal(t, "Job 9 não encontrado.", cmds.Retry(ctx, []string{"9"}))
	assert.Contains(t, cmds.Pause(ctx, nil), "Formato inválido")
	assert.Contains(t, cmds.Pause(ctx, []string{"abc"}), "número positivo")
}

func TestRunCommand(t *testing.T) {
	cmds, _, runner, observed := newCommands()
	ctx := context.Background()

	reply := cmds.Run(ctx, []string{"dry", "7"})
	assert.True(t, runner.opts.DryRun)
	assert.Equal(t, int64(7), runner.opts.ForceJobID)
	assert.Contains(t, reply, "(simulação)")
	assert.Contains(t, reply, "E-mails que seriam enviados: 5")
	require.Len(t, *observed, 1)

	reply = cmds.Run(ctx, nil)
	assert.False(t, runner.opts.DryRun)
	assert.Contains(t, reply, "E-mails: 5 enviados")

	assert.Contains(t, cmds.Run(ctx, []string{"1", "2"}), "Formato inválido")
	assert.Len(t, *observed, 2)
}

func TestReporterSkipsQuietRuns(t *testing.T) {
	client := &fakeClient{}
	r := NewReporter(client, 42, testEntry())

	r.ObserveBatch(&app.RunSummary{}, nil)
	r.ObserveClosing(&app.ClosingSummary{})
	assert.Empty(t, client.sent)

	r.ObserveBatch(&app.RunSummary{JobsSelected: 2, JobsProcessed: 2, EmailsSent: 10}, nil)
	r.ObserveBatch(&app.RunSummary{}, errors.New("db down"))
	r.ObserveClosing(&app.ClosingSummary{CyclesFound: 1, EmailsSent: 3})
	require.Len(t, client.sent, 3)
	assert.Equal(t, int64(42), client.sent[0].chatID)
	assert.Contains(t, client.sent[0].text, "E-mails: 10 enviados")
	assert.Contains(t, client.sent[1].text, "Erro: db down")
	assert.Contains(t, client.sent[2].text, "Avisos de encerramento")
}

func TestReporterLogsSendFailure(t *testing.T) {
	l, hook := test.NewNullLogger()
	client := &fakeClient{err: errors.New("blocked by user")}
	r := NewReporter(client, 42, logrus.NewEntry(l))

	r.ObserveBatch(&app.RunSummary{JobsSelected: 1}, nil)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestFormatRunSummaryCapsErrors(t *testing.T) {
	s := &app.RunSummary{JobsSelected: 12}
	for i := int64(1); i <= 12; i++ {
		s.Errors = append(s.Errors, app.JobError{JobID: i, Message: "boom"})
	}

	text := FormatRunSummary(s, nil)
	assert.Contains(t, text, "- job 10: boom")
	assert.NotContains(t, text, "- job 11: boom")
	assert.Contains(t, text, "... e mais 2")
}

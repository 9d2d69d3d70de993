package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"evaluation_reminders/internal/domain/evaluation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClosingFixture(t *testing.T) (*ClosingReminderService, *fakeEvalRepo, *fakeSender) {
	t.Helper()
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	er := newFakeEvalRepo()
	er.addCycle(&evaluation.Cycle{ID: 1, Name: "2025.1", EndDate: time.Date(2025, 6, 12, 23, 59, 0, 0, time.UTC), Active: true})
	er.addCycle(&evaluation.Cycle{ID: 2, Name: "2025.1 Pós", EndDate: time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC), Active: true})

	shared := makeStudents(1, 1)[0]
	er.addClass(&evaluation.Class{ID: 10, ProfessorID: 100}, shared, &evaluation.Student{ID: 2, Name: "B", Email: "b@example.edu"})
	er.addClass(&evaluation.Class{ID: 11, ProfessorID: 101}, shared, &evaluation.Student{ID: 3, Name: "C", Email: "c@example.edu"},
		&evaluation.Student{ID: 4, Name: "Sem Email"})
	_, err := er.AttachClass(context.Background(), 1, 10)
	require.NoError(t, err)
	_, err = er.AttachClass(context.Background(), 1, 11)
	require.NoError(t, err)

	ev := er.addEvaluation(&evaluation.Evaluation{CycleID: 1, ClassID: 10, ProfessorID: 100})
	er.addResponse(ev.ID, 2, 1, evaluation.OptionGood)

	sender := newFakeSender()
	svc := NewClosingReminderService(er, sender, 2, "https://avaliacao.example.edu", time.Second, testLogger())
	svc.now = func() time.Time { return now }
	return svc, er, sender
}

func TestClosingReminders_SendsOncePerCycle(t *testing.T) {
	svc, er, sender := newClosingFixture(t)
	ctx := context.Background()

	summary, err := svc.Run(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CyclesFound)
	assert.Equal(t, 2, summary.EmailsSent, "shared student is reminded once")
	assert.Equal(t, 1, summary.NoEmail)
	require.Equal(t, 2, sender.count())
	assert.Equal(t, "aluno1@example.edu", sender.sent[0].ToEmail)
	assert.Equal(t, "c@example.edu", sender.sent[1].ToEmail)
	assert.Contains(t, sender.sent[0].Subject, "encerra em 2 dias")
	assert.Equal(t, 2, er.closingReminders["1/"+ClosingReminderKind(2)])

	summary, err = svc.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CyclesSkipped)
	assert.Equal(t, 2, sender.count())
}

func TestClosingReminders_DryRun(t *testing.T) {
	svc, er, sender := newClosingFixture(t)

	summary, err := svc.Run(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.WouldSend)
	assert.Equal(t, 0, sender.count())
	assert.Empty(t, er.closingReminders)
}

func TestClosingReminders_FailedSendsAreCounted(t *testing.T) {
	svc, er, sender := newClosingFixture(t)
	sender.failFor["c@example.edu"] = errors.New("quota exceeded")

	summary, err := svc.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.EmailsSent)
	assert.Equal(t, 1, summary.EmailsFailed)
	assert.Empty(t, er.closingReminders, "a partially failed cycle is not recorded")

	delete(sender.failFor, "c@example.edu")
	summary, err = svc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.CyclesSkipped)
	assert.Equal(t, 2, summary.EmailsSent)
	assert.Equal(t, 2, er.closingReminders["1/"+ClosingReminderKind(2)])
}

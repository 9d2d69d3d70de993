package app

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"strings"
	texttmpl "text/template"
	"time"

	"evaluation_reminders/internal/domain/evaluation"
	"evaluation_reminders/internal/domain/mail"
)

// reminderData is the context handed to the reminder templates.
type reminderData struct {
	StudentName    string
	CourseName     string
	ClassCode      string
	DisciplineName string
	CycleName      string
	EndDate        string
	EvaluationURL  string
	Round          int
	DaysLeft       int
}

var (
	reminderText = texttmpl.Must(texttmpl.New("reminder.txt").Option("missingkey=error").Parse(
		`Olá {{.StudentName}},

Você ainda não avaliou a disciplina {{.DisciplineName}} (turma {{.ClassCode}}, curso {{.CourseName}}).
O ciclo "{{.CycleName}}" encerra em {{.EndDate}}.

Acesse {{.EvaluationURL}} para responder.
{{if gt .Round 1}}
Este é o lembrete número {{.Round}}.
{{end}}
Equipe de Avaliação Docente
`))

	reminderHTML = htmltmpl.Must(htmltmpl.New("reminder.gohtml").Option("missingkey=error").Parse(
		`<p>Olá {{.StudentName}},</p>
<p>Você ainda não avaliou a disciplina <strong>{{.DisciplineName}}</strong> (turma {{.ClassCode}}, curso {{.CourseName}}).<br>
O ciclo &quot;{{.CycleName}}&quot; encerra em {{.EndDate}}.</p>
<p><a href="{{.EvaluationURL}}">Responder avaliação</a></p>
{{if gt .Round 1}}<p>Este é o lembrete número {{.Round}}.</p>{{end}}
<p>Equipe de Avaliação Docente</p>
`))

	closingText = texttmpl.Must(texttmpl.New("closing.txt").Option("missingkey=error").Parse(
		`Olá {{.StudentName}},

Este é um lembrete de que a avaliação docente está próxima do encerramento.

Ciclo: {{.CycleName}}
Encerra em: {{.EndDate}} (faltam {{.DaysLeft}} dias)

Você ainda NÃO respondeu a esta avaliação.
Acesse {{.EvaluationURL}} para responder.

Atenciosamente,
Equipe de Avaliação Docente
`))
)

func evaluationURL(siteURL string) string {
	return strings.TrimRight(siteURL, "/") + "/avaliacoes/"
}

func displayName(st *evaluation.Student) string {
	if strings.TrimSpace(st.Name) != "" {
		return st.Name
	}
	return st.Email
}

// buildReminderMessage renders the per-round reminder for one student.
func buildReminderMessage(siteURL string, st *evaluation.Student, class *evaluation.Class, cycle *evaluation.Cycle, round int) (mail.Message, error) {
	course := class.CourseName
	if course == "" {
		course = "N/A"
	}
	data := reminderData{
		StudentName:    displayName(st),
		CourseName:     course,
		ClassCode:      class.Code,
		DisciplineName: class.DisciplineName,
		CycleName:      cycle.Name,
		EndDate:        cycle.EndDate.Format("02/01/2006"),
		EvaluationURL:  evaluationURL(siteURL),
		Round:          round,
	}

	var text, html bytes.Buffer
	if err := reminderText.Execute(&text, data); err != nil {
		return mail.Message{}, fmt.Errorf("failed to render reminder text: %w", err)
	}
	if err := reminderHTML.Execute(&html, data); err != nil {
		return mail.Message{}, fmt.Errorf("failed to render reminder html: %w", err)
	}

	return mail.Message{
		ToName:   st.Name,
		ToEmail:  st.Email,
		Subject:  "Lembrete: Avalie a disciplina - " + class.DisciplineName,
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}

// buildClosingMessage renders the "cycle closes soon" reminder.
func buildClosingMessage(siteURL string, st *evaluation.Student, cycle *evaluation.Cycle, daysLeft int) (mail.Message, error) {
	data := reminderData{
		StudentName:   displayName(st),
		CycleName:     cycle.Name,
		EndDate:       cycle.EndDate.Format("02/01/2006"),
		EvaluationURL: evaluationURL(siteURL),
		DaysLeft:      daysLeft,
	}
	var text bytes.Buffer
	if err := closingText.Execute(&text, data); err != nil {
		return mail.Message{}, fmt.Errorf("failed to render closing reminder: %w", err)
	}
	return mail.Message{
		ToName:   st.Name,
		ToEmail:  st.Email,
		Subject:  fmt.Sprintf("LEMBRETE: Avaliação Docente encerra em %d dias - %s", daysLeft, cycle.Name),
		TextBody: text.String(),
	}, nil
}

// sendTimeoutReason turns a context deadline into a readable failure reason.
func sendTimeoutReason(timeout time.Duration) string {
	return fmt.Sprintf("send timed out after %s", timeout)
}

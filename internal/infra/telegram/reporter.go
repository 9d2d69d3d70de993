package telegram

import (
	"fmt"
	"strings"

	"evaluation_reminders/internal/app"
	"evaluation_reminders/internal/domain/telegram"

	"github.com/sirupsen/logrus"
)

// maxReportedErrors caps the per-job error lines in one report.
const maxReportedErrors = 10

// Reporter posts run summaries to the operator chat. Quiet runs (nothing
// selected, no errors) are not reported.
type Reporter struct {
	client telegram.Client
	chatID int64
	logger *logrus.Entry
}

func NewReporter(client telegram.Client, chatID int64, logger *logrus.Entry) *Reporter {
	return &Reporter{
		client: client,
		chatID: chatID,
		logger: logger.WithField("component", "telegram_reporter"),
	}
}

func (r *Reporter) ObserveBatch(s *app.RunSummary, runErr error) {
	if s == nil {
		return
	}
	if runErr == nil && s.JobsSelected == 0 && len(s.Errors) == 0 {
		return
	}
	r.send(FormatRunSummary(s, runErr))
}

func (r *Reporter) ObserveClosing(s *app.ClosingSummary) {
	if s == nil || (s.CyclesFound == 0 && len(s.Errors) == 0) {
		return
	}
	r.send(FormatClosingSummary(s))
}

func (r *Reporter) send(text string) {
	if err := r.client.SendText(r.chatID, text); err != nil {
		r.logger.WithError(err).WithField("chat_id", r.chatID).Error("Failed to send run report")
	}
}

func writeErrors(b *strings.Builder, errs []app.JobError) {
	for i, e := range errs {
		if i == maxReportedErrors {
			fmt.Fprintf(b, "... e mais %d\n", len(errs)-maxReportedErrors)
			break
		}
		if e.JobID != 0 {
			fmt.Fprintf(b, "- job %d: %s\n", e.JobID, e.Message)
		} else {
			fmt.Fprintf(b, "- %s\n", e.Message)
		}
	}
}

// FormatRunSummary renders a batch summary as plain text.
func FormatRunSummary(s *app.RunSummary, runErr error) string {
	if s == nil {
		s = &app.RunSummary{}
	}
	var b strings.Builder
	title := "Lembretes de avaliação"
	if s.DryRun {
		title += " (simulação)"
	}
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "Jobs: %d selecionados, %d processados, %d ignorados\n", s.JobsSelected, s.JobsProcessed, s.JobsSkipped)
	fmt.Fprintf(&b, "Concluídos: %d, com falha: %d\n", s.JobsCompleted, s.JobsFailed)
	if s.DryRun {
		fmt.Fprintf(&b, "E-mails que seriam enviados: %d\n", s.WouldSend)
	} else {
		fmt.Fprintf(&b, "E-mails: %d enviados, %d falharam, %d sem endereço\n", s.EmailsSent, s.EmailsFailed, s.EmailsSkipped)
	}
	if runErr != nil {
		fmt.Fprintf(&b, "Erro: %v\n", runErr)
	}
	if len(s.Errors) > 0 {
		b.WriteString("Erros:\n")
		writeErrors(&b, s.Errors)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatClosingSummary renders a closing-soon run as plain text.
func FormatClosingSummary(s *app.ClosingSummary) string {
	var b strings.Builder
	title := "Avisos de encerramento"
	if s.DryRun {
		title += " (simulação)"
	}
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "Ciclos: %d encontrados, %d já avisados\n", s.CyclesFound, s.CyclesSkipped)
	if s.DryRun {
		fmt.Fprintf(&b, "E-mails que seriam enviados: %d\n", s.WouldSend)
	} else {
		fmt.Fprintf(&b, "E-mails: %d enviados, %d falharam, %d sem endereço\n", s.EmailsSent, s.EmailsFailed, s.NoEmail)
	}
	if len(s.Errors) > 0 {
		b.WriteString("Erros:\n")
		writeErrors(&b, s.Errors)
	}
	return strings.TrimRight(b.String(), "\n")
}

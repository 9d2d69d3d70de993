// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// OperatorHelp lists the operator commands in Markdown.
func OperatorHelp() string {
	var helpText strings.Builder
	helpText.WriteString("Comandos do operador:\n\n")
	helpText.WriteString("`/jobs [status...]`\n - Lista os jobs de lembrete (pending, running, completed, paused, failed).\n\n")
	helpText.WriteString("`/pause <job_id>`\n - Pausa um job.\n\n")
	helpText.WriteString("`/resume <job_id>`\n - Retoma um job pausado imediatamente.\n\n")
	helpText.WriteString("`/retry <job_id>`\n - Reagenda um job com falha.\n\n")
	helpText.WriteString("`/run [dry] [job_id]`\n - Executa o lote agora; `dry` apenas simula, `job_id` força um único job.\n\n")
	helpText.WriteString("`/help`\n - Mostra esta mensagem.")
	return helpText.String()
}

func RegisterBotCommands(b *telebot.Bot, operatorID int64, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == operatorID {
			return c.Send(fmt.Sprintf("Olá, %s! Acompanho os lembretes de avaliação docente. Use /help para ver os comandos.", c.Sender().FirstName))
		}
		logCtx.Info("User is not the operator")
		return c.Send("Olá! Este bot é de uso exclusivo da coordenação da Avaliação Docente.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID).Info("Processing /help command")

		if senderID == operatorID {
			return c.Send(OperatorHelp(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}
		return c.Send("Nenhum comando disponível para você.")
	})
}

package mail

import (
	"context"
	"fmt"

	"evaluation_reminders/internal/domain/mail"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ConsoleSender logs messages instead of delivering them. Used in development
// and when MAIL_BACKEND=console.
type ConsoleSender struct {
	logger *logrus.Entry
}

var _ mail.Sender = (*ConsoleSender)(nil)

func NewConsoleSender(logger *logrus.Entry) *ConsoleSender {
	return &ConsoleSender{logger: logger.WithField("component", "console_mail")}
}

func (s *ConsoleSender) Send(ctx context.Context, msg mail.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if msg.ToEmail == "" {
		return "", fmt.Errorf("recipient address is empty")
	}

	id := "<" + uuid.NewString() + "@console>"
	s.logger.WithFields(logrus.Fields{
		"message_id": id,
		"to":         msg.ToEmail,
		"subject":    msg.Subject,
	}).Info("E-mail written to console")
	s.logger.Debug(msg.TextBody)
	return id, nil
}

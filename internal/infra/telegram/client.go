// internal/infra/telegram/client.go
package telegram

import (
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const pollTimeout = 10 * time.Second

// TelebotAdapter implements the domain Client interface using gopkg.in/telebot.v3.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

func (tba *TelebotAdapter) send(chatID int64, text string, options *telebot.SendOptions) error {
	_, err := tba.bot.Send(telebot.ChatID(chatID), text, options)
	return err
}

func (tba *TelebotAdapter) SendText(chatID int64, text string) error {
	return tba.send(chatID, text, &telebot.SendOptions{})
}

func (tba *TelebotAdapter) SendMarkdown(chatID int64, text string) error {
	return tba.send(chatID, text, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
}

// NewBot builds a long-polling bot. It does not start polling.
func NewBot(token string, logger *logrus.Entry) (*telebot.Bot, error) {
	return telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: pollTimeout},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := logger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"text": c.Text(), "sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("Telegram handler failed")
		},
	})
}

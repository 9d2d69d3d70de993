package telegram

// Client sends operator-facing messages to a Telegram chat.
type Client interface {
	SendText(chatID int64, text string) error
	SendMarkdown(chatID int64, text string) error
}

package mail

import "context"

// Message is a rendered e-mail for a single recipient.
type Message struct {
	ToName   string
	ToEmail  string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers one message synchronously. A nil error means the transport
// accepted the message; the returned id identifies it (may be empty).
// Implementations must honour ctx cancellation so callers can bound each send.
type Sender interface {
	Send(ctx context.Context, msg Message) (messageID string, err error)
}

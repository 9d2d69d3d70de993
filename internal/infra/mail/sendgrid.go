package mail

import (
	"context"
	"net/http"

	"evaluation_reminders/internal/domain/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// SendGridSender delivers messages through the SendGrid v3 HTTP API.
type SendGridSender struct {
	key  string
	host string
	from *sgmail.Email
}

var _ mail.Sender = (*SendGridSender)(nil)

func NewSendGridSender(key, fromName, fromAddress string) *SendGridSender {
	return &SendGridSender{
		key:  key,
		host: host,
		from: sgmail.NewEmail(fromName, fromAddress),
	}
}

func (s *SendGridSender) prepare(msg mail.Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToEmail))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.TextBody))
	if msg.HTMLBody != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLBody))
	}
	return m
}

// Send posts one message. A 4xx/5xx status is an error; the X-Message-Id
// header is returned as the message id when present.
func (s *SendGridSender) Send(ctx context.Context, msg mail.Message) (string, error) {
	if msg.ToEmail == "" {
		return "", errors.New("sendgrid: recipient address is empty")
	}

	req := sendgrid.GetRequest(s.key, endpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "sendgrid request failed")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return "", errors.Errorf("sendgrid rejected message: status %d: %s", res.StatusCode, res.Body)
	}
	if ids := res.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}

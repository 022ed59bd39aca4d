package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendTimeout = 10 * time.Second

// SendGridSender delivers mail through the SendGrid v3 mail/send API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendGridSender builds a sender for apiKey. A non-empty endpoint replaces
// the default https://api.sendgrid.com/v3/mail/send URL.
func NewSendGridSender(apiKey, from, endpoint string) *SendGridSender {
	client := sendgrid.NewSendClient(apiKey)
	if endpoint != "" {
		client.BaseURL = endpoint
	}
	return &SendGridSender{
		client: client,
		from:   mail.NewEmail("", from),
	}
}

func (s *SendGridSender) SendEmail(ctx context.Context, to, subject, body string) error {
	msg := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", to), "", body)

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("POST %s: %w", s.client.BaseURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := resp.Body
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, strings.TrimSpace(detail))
	}
	return nil
}

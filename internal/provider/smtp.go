// internal/provider/smtp.go
package provider

import (
	"context"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/model"
)

// SMTPSender delivers email over plain SMTP. SMTP returns no provider message
// id, so one is generated locally; webhook reconciliation still works because
// the id is stored on the recipient before any callback can reference it.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (s *SMTPSender) Send(ctx context.Context, rec *model.Recipient, content model.Content) (*Result, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", rec.Email)
	m.SetHeader("Subject", content.Subject)
	m.SetBody("text/html", content.Body)

	d := gomail.NewDialer(s.Host, s.Port, s.Username, s.Password)

	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, appErrors.NewProvider("smtp", err.Error())
		}
	}

	return &Result{MessageID: uuid.New().String(), ProviderStatus: "accepted"}, nil
}

// internal/provider/sendgrid.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/model"
)

const sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

// SendGridSender sends email through the SendGrid v3 mail API.
type SendGridSender struct {
	APIKey    string
	FromEmail string
	FromName  string

	Client  *http.Client
	Limiter *rate.Limiter

	// Endpoint is overridable for tests.
	Endpoint string
}

func NewSendGridSender(apiKey, fromEmail, fromName string, rps int) *SendGridSender {
	if rps <= 0 {
		rps = 50
	}
	return &SendGridSender{
		APIKey:    apiKey,
		FromEmail: fromEmail,
		FromName:  fromName,
		Client:    &http.Client{Timeout: 15 * time.Second},
		Limiter:   rate.NewLimiter(rate.Limit(rps), rps),
		Endpoint:  sendGridEndpoint,
	}
}

func (s *SendGridSender) Send(ctx context.Context, rec *model.Recipient, content model.Content) (*Result, error) {
	if err := s.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": rec.Email, "name": rec.Name}}},
		},
		"from":    map[string]string{"email": s.FromEmail, "name": s.FromName},
		"subject": content.Subject,
		"content": []map[string]string{
			{"type": "text/html", "value": content.Body},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var messageID string

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.Client.Do(req)
		if err != nil {
			return err // transient: retried with backoff
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("sendgrid returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(appErrors.NewProvider(
				fmt.Sprintf("%d", resp.StatusCode), string(detail)))
		}

		messageID = resp.Header.Get("X-Message-Id")
		if messageID == "" {
			messageID = uuid.New().String()
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 8 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if _, ok := err.(*appErrors.ErrProvider); ok {
			return nil, err
		}
		return nil, appErrors.NewProvider("transport", err.Error())
	}

	return &Result{MessageID: messageID, ProviderStatus: "accepted"}, nil
}

// internal/provider/twilio.go
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/model"
)

// TwilioSender sends SMS or WhatsApp messages through the Twilio Messages
// API. The same client serves both channels; WhatsApp only changes the
// address prefix.
type TwilioSender struct {
	AccountSID string
	AuthToken  string
	From       string
	WhatsApp   bool

	Client  *http.Client
	Limiter *rate.Limiter

	// Endpoint is overridable for tests.
	Endpoint string
}

func NewTwilioSender(accountSID, authToken, from string, whatsapp bool, rps int) *TwilioSender {
	if rps <= 0 {
		rps = 50
	}
	return &TwilioSender{
		AccountSID: accountSID,
		AuthToken:  authToken,
		From:       from,
		WhatsApp:   whatsapp,
		Client:     &http.Client{Timeout: 15 * time.Second},
		Limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		Endpoint:   fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", accountSID),
	}
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (t *TwilioSender) Send(ctx context.Context, rec *model.Recipient, content model.Content) (*Result, error) {
	if err := t.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	to := rec.Phone
	from := t.From
	if t.WhatsApp {
		to = "whatsapp:" + to
		if !strings.HasPrefix(from, "whatsapp:") {
			from = "whatsapp:" + from
		}
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", content.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(t.AccountSID, t.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, appErrors.NewProvider("transport", err.Error())
	}
	defer resp.Body.Close()

	var body twilioResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, appErrors.NewProvider("transport", "unreadable twilio response: "+err.Error())
	}

	if resp.StatusCode >= 400 || body.SID == "" {
		code := fmt.Sprintf("%d", body.Code)
		if body.Code == 0 {
			code = fmt.Sprintf("%d", resp.StatusCode)
		}
		return nil, appErrors.NewProvider(code, body.Message)
	}

	return &Result{MessageID: body.SID, ProviderStatus: body.Status}, nil
}

// internal/validator/validator.go
package validator

import (
	"regexp"
	"strings"

	"github.com/unclebandit/msgblast-backend/internal/model"
)

// MaxRecipients caps the recipient list of a single job. Enforced by the
// job service before creation, not here.
const MaxRecipients = 10000

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{10,14}$`)
	phoneStrip   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// RawRecipient is an unvalidated recipient record as submitted by a caller.
type RawRecipient struct {
	Email        string            `json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	Name         string            `json:"name,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// Invalid pairs a rejected recipient with the reasons it was rejected.
type Invalid struct {
	Recipient RawRecipient `json:"recipient"`
	Reasons   []string     `json:"reasons"`
}

// NormalizePhone strips spaces, dashes and parens from a phone number.
func NormalizePhone(phone string) string {
	return phoneStrip.Replace(strings.TrimSpace(phone))
}

// Validate checks every recipient independently against the channel's address
// rules. Invalid recipients are reported, never silently dropped, and do not
// block validation of the rest.
func Validate(raw []RawRecipient, channel model.Channel) ([]model.Recipient, []Invalid) {
	valid := make([]model.Recipient, 0, len(raw))
	var invalid []Invalid

	for _, r := range raw {
		reasons := check(r, channel)
		if len(reasons) > 0 {
			invalid = append(invalid, Invalid{Recipient: r, Reasons: reasons})
			continue
		}

		rec := model.Recipient{
			Name:         strings.TrimSpace(r.Name),
			CustomFields: r.CustomFields,
			Status:       model.RecipientPending,
		}
		switch channel {
		case model.ChannelEmail:
			rec.Email = strings.TrimSpace(r.Email)
		default:
			rec.Phone = NormalizePhone(r.Phone)
		}
		valid = append(valid, rec)
	}

	return valid, invalid
}

func check(r RawRecipient, channel model.Channel) []string {
	var reasons []string

	switch channel {
	case model.ChannelEmail:
		email := strings.TrimSpace(r.Email)
		if email == "" {
			reasons = append(reasons, "Missing email address")
		} else if !emailPattern.MatchString(email) {
			reasons = append(reasons, "Invalid email format")
		}
	case model.ChannelSMS, model.ChannelWhatsApp:
		phone := NormalizePhone(r.Phone)
		if phone == "" {
			reasons = append(reasons, "Missing phone number")
		} else if !phonePattern.MatchString(phone) {
			reasons = append(reasons, "Invalid phone format")
		}
	default:
		reasons = append(reasons, "Unsupported channel")
	}

	return reasons
}

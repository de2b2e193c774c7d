// internal/content/resolver.go
package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/model"
)

// SMSBodyLimit is the single-segment SMS length the body is truncated to
// before the opt-out suffix is appended.
const SMSBodyLimit = 160

// OptOutSuffix is appended to SMS bodies that do not already carry an
// opt-out instruction.
const OptOutSuffix = " Reply STOP to opt out."

const unsubscribeToken = "{unsubscribe_link}"

// Store looks up the externally-managed content sources a job may reference.
type Store interface {
	Template(ctx context.Context, id string) (*model.Content, error)
	GeneratedMessage(ctx context.Context, id string) (*model.Content, error)
}

// Resolver resolves a job's message body from its content source and
// personalizes it per recipient.
type Resolver struct {
	Store              Store
	CompanyName        string
	UnsubscribeBaseURL string

	// Now is overridable so date tokens are deterministic in tests.
	Now func() time.Time
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Resolve picks the job's content with fixed precedence: template content
// over AI-generated content over inline custom content. Missing content is a
// hard error.
func (r *Resolver) Resolve(ctx context.Context, job *model.SendJob) (model.Content, error) {
	if job.TemplateID != nil && *job.TemplateID != "" {
		c, err := r.Store.Template(ctx, *job.TemplateID)
		if err != nil {
			return model.Content{}, fmt.Errorf("template lookup: %w", err)
		}
		if c != nil && c.Body != "" {
			return *c, nil
		}
	}
	if job.GeneratedMessageID != nil && *job.GeneratedMessageID != "" {
		c, err := r.Store.GeneratedMessage(ctx, *job.GeneratedMessageID)
		if err != nil {
			return model.Content{}, fmt.Errorf("generated message lookup: %w", err)
		}
		if c != nil && c.Body != "" {
			return *c, nil
		}
	}
	if job.InlineContent != nil && job.InlineContent.Body != "" {
		return *job.InlineContent, nil
	}
	return model.Content{}, appErrors.NewNoContentAvailable(job.ID)
}

// Personalize substitutes {token} placeholders in the content. The mapping is
// recipient identity fields, overlaid with custom fields, overlaid with
// system tokens. System tokens are applied last, so a recipient custom field
// cannot override company or unsubscribe_link; that precedence is policy.
// Unmatched tokens are left verbatim.
func (r *Resolver) Personalize(c model.Content, rec *model.Recipient) model.Content {
	tokens := map[string]string{
		"name":       rec.Name,
		"first_name": firstName(rec.Name),
		"email":      rec.Email,
		"phone":      rec.Phone,
	}
	for k, v := range rec.CustomFields {
		tokens[k] = v
	}

	now := r.now()
	tokens["company"] = r.CompanyName
	tokens["unsubscribe_link"] = r.unsubscribeLink(rec)
	tokens["current_year"] = now.Format("2006")
	tokens["current_date"] = now.Format("January 2, 2006")

	c.Subject = replaceTokens(c.Subject, tokens)
	c.Body = replaceTokens(c.Body, tokens)
	c.Preheader = replaceTokens(c.Preheader, tokens)
	return c
}

// Render produces the final per-recipient payload: personalization plus
// channel-specific post-processing.
func (r *Resolver) Render(c model.Content, rec *model.Recipient, channel model.Channel) model.Content {
	switch channel {
	case model.ChannelEmail:
		// Appended before personalization so the token resolves below.
		if !strings.Contains(c.Body, unsubscribeToken) {
			c.Body += "\n\nUnsubscribe: " + unsubscribeToken
		}
		return r.Personalize(c, rec)

	case model.ChannelSMS:
		out := r.Personalize(c, rec)
		body := out.Body
		if runes := []rune(body); len(runes) > SMSBodyLimit {
			body = string(runes[:SMSBodyLimit])
		}
		if !strings.Contains(body, "Reply STOP") {
			body += OptOutSuffix
		}
		out.Body = body
		out.Subject = ""
		out.Preheader = ""
		return out

	default: // whatsapp: body passed through as-is
		out := r.Personalize(c, rec)
		out.Subject = ""
		out.Preheader = ""
		return out
	}
}

func (r *Resolver) unsubscribeLink(rec *model.Recipient) string {
	return fmt.Sprintf("%s/unsubscribe/%s/%d", r.UnsubscribeBaseURL, rec.JobID, rec.ID)
}

func replaceTokens(s string, tokens map[string]string) string {
	if s == "" {
		return s
	}
	for k, v := range tokens {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

func firstName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

package content

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/model"
)

type fakeStore struct {
	templates map[string]*model.Content
	generated map[string]*model.Content
	err       error
}

func (f *fakeStore) Template(ctx context.Context, id string) (*model.Content, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.templates[id], nil
}

func (f *fakeStore) GeneratedMessage(ctx context.Context, id string) (*model.Content, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.generated[id], nil
}

func newResolver(store Store) *Resolver {
	return &Resolver{
		Store:              store,
		CompanyName:        "MsgBlast",
		UnsubscribeBaseURL: "https://msgblast.io",
		Now: func() time.Time {
			return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
		},
	}
}

func strPtr(s string) *string { return &s }

func TestResolvePrecedence(t *testing.T) {
	store := &fakeStore{
		templates: map[string]*model.Content{"tpl": {Body: "from template"}},
		generated: map[string]*model.Content{"gen": {Body: "from generator"}},
	}
	r := newResolver(store)

	// template wins over generated and inline
	job := &model.SendJob{
		ID:                 "j1",
		TemplateID:         strPtr("tpl"),
		GeneratedMessageID: strPtr("gen"),
		InlineContent:      &model.Content{Body: "inline"},
	}
	c, err := r.Resolve(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "from template", c.Body)

	// generated wins over inline
	job.TemplateID = nil
	c, err = r.Resolve(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "from generator", c.Body)

	// inline last
	job.GeneratedMessageID = nil
	c, err = r.Resolve(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "inline", c.Body)
}

func TestResolveMissingTemplateFallsThrough(t *testing.T) {
	r := newResolver(&fakeStore{})
	job := &model.SendJob{
		ID:            "j1",
		TemplateID:    strPtr("nope"),
		InlineContent: &model.Content{Body: "inline"},
	}
	c, err := r.Resolve(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "inline", c.Body)
}

func TestResolveNoContent(t *testing.T) {
	r := newResolver(&fakeStore{})
	_, err := r.Resolve(context.Background(), &model.SendJob{ID: "j1"})

	var ncErr *appErrors.ErrNoContentAvailable
	require.True(t, errors.As(err, &ncErr))
	assert.Equal(t, "j1", ncErr.JobID)
}

func TestPersonalizeTokens(t *testing.T) {
	r := newResolver(&fakeStore{})
	rec := &model.Recipient{
		ID:           7,
		JobID:        "j1",
		Name:         "Alice Wanjiku",
		Email:        "alice@example.com",
		CustomFields: map[string]string{"plan": "pro"},
	}

	c := r.Personalize(model.Content{
		Subject: "Hi {first_name}",
		Body:    "Dear {name}, your {plan} plan renews in {current_year}. {unknown} stays.",
	}, rec)

	assert.Equal(t, "Hi Alice", c.Subject)
	assert.Equal(t, "Dear Alice Wanjiku, your pro plan renews in 2026. {unknown} stays.", c.Body)
}

func TestPersonalizeSystemTokensWin(t *testing.T) {
	r := newResolver(&fakeStore{})
	rec := &model.Recipient{
		ID:           3,
		JobID:        "j1",
		CustomFields: map[string]string{"company": "Spoofed Inc"},
	}

	c := r.Personalize(model.Content{Body: "{company} / {current_date}"}, rec)
	assert.Equal(t, "MsgBlast / March 15, 2026", c.Body)
}

func TestRenderEmailAppendsUnsubscribeFooter(t *testing.T) {
	r := newResolver(&fakeStore{})
	rec := &model.Recipient{ID: 42, JobID: "j1", Email: "alice@example.com"}

	c := r.Render(model.Content{Subject: "s", Body: "Hello"}, rec, model.ChannelEmail)
	assert.Contains(t, c.Body, "Unsubscribe: https://msgblast.io/unsubscribe/j1/42")
}

func TestRenderEmailKeepsExistingUnsubscribeToken(t *testing.T) {
	r := newResolver(&fakeStore{})
	rec := &model.Recipient{ID: 42, JobID: "j1"}

	c := r.Render(model.Content{Body: "Opt out: {unsubscribe_link}"}, rec, model.ChannelEmail)
	assert.Equal(t, "Opt out: https://msgblast.io/unsubscribe/j1/42", c.Body)
	assert.Equal(t, 1, strings.Count(c.Body, "unsubscribe/j1/42"))
}

func TestRenderSMSTruncatesThenAppendsOptOut(t *testing.T) {
	r := newResolver(&fakeStore{})
	rec := &model.Recipient{ID: 1, JobID: "j1", Phone: "+254712345678", Name: "Alice"}

	long := strings.Repeat("x", 300)
	c := r.Render(model.Content{Subject: "ignored", Body: long}, rec, model.ChannelSMS)

	assert.Equal(t, strings.Repeat("x", SMSBodyLimit)+OptOutSuffix, c.Body)
	assert.Empty(t, c.Subject)
	assert.Empty(t, c.Preheader)
}

func TestRenderSMSPersonalizesBeforeTruncation(t *testing.T) {
	r := newResolver(&fakeStore{})
	rec := &model.Recipient{ID: 1, JobID: "j1", Name: "Alice"}

	// the token expands first; truncation applies to the expanded body
	body := "{name}" + strings.Repeat("y", 200)
	c := r.Render(model.Content{Body: body}, rec, model.ChannelSMS)

	assert.True(t, strings.HasPrefix(c.Body, "Alice"))
	assert.Equal(t, SMSBodyLimit+len(OptOutSuffix), len([]rune(c.Body)))
}

func TestRenderSMSSkipsDuplicateOptOut(t *testing.T) {
	r := newResolver(&fakeStore{})
	rec := &model.Recipient{ID: 1, JobID: "j1"}

	c := r.Render(model.Content{Body: "Sale on now. Reply STOP to opt out."}, rec, model.ChannelSMS)
	assert.Equal(t, 1, strings.Count(c.Body, "Reply STOP"))
}

func TestRenderWhatsAppPassthrough(t *testing.T) {
	r := newResolver(&fakeStore{})
	rec := &model.Recipient{ID: 1, JobID: "j1", Name: "Bob"}

	long := strings.Repeat("z", 300)
	c := r.Render(model.Content{Subject: "s", Body: "Hi {first_name} " + long}, rec, model.ChannelWhatsApp)

	assert.True(t, strings.HasPrefix(c.Body, "Hi Bob"))
	assert.Empty(t, c.Subject)
	// no SMS length limit applies
	assert.Greater(t, len(c.Body), SMSBodyLimit)
}

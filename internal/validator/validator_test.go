package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/msgblast-backend/internal/model"
)

func TestValidateEmailMixedList(t *testing.T) {
	raw := []RawRecipient{
		{Email: "alice@example.com", Name: "Alice"},
		{Email: "not-an-email", Name: "Broken"},
		{Email: "bob@example.com", Name: "Bob"},
	}

	valid, invalid := Validate(raw, model.ChannelEmail)

	require.Len(t, valid, 2)
	assert.Equal(t, "alice@example.com", valid[0].Email)
	assert.Equal(t, "bob@example.com", valid[1].Email)
	assert.Equal(t, model.RecipientPending, valid[0].Status)

	require.Len(t, invalid, 1)
	assert.Equal(t, "not-an-email", invalid[0].Recipient.Email)
	assert.Equal(t, []string{"Invalid email format"}, invalid[0].Reasons)
}

func TestValidateEmailMissing(t *testing.T) {
	_, invalid := Validate([]RawRecipient{{Name: "No Address"}}, model.ChannelEmail)
	require.Len(t, invalid, 1)
	assert.Equal(t, []string{"Missing email address"}, invalid[0].Reasons)
}

func TestValidatePhoneNormalization(t *testing.T) {
	raw := []RawRecipient{
		{Phone: "+254 712 345-678", Name: "Spaced"},
		{Phone: "(254) 712345679", Name: "Parens"},
	}

	valid, invalid := Validate(raw, model.ChannelSMS)
	require.Empty(t, invalid)
	require.Len(t, valid, 2)
	assert.Equal(t, "+254712345678", valid[0].Phone)
	assert.Equal(t, "254712345679", valid[1].Phone)
}

func TestValidatePhoneRejections(t *testing.T) {
	raw := []RawRecipient{
		{Name: "Missing"},
		{Phone: "12345", Name: "TooShort"},
		{Phone: "0712345678", Name: "LeadingZero"},
	}

	valid, invalid := Validate(raw, model.ChannelWhatsApp)
	assert.Empty(t, valid)
	require.Len(t, invalid, 3)
	assert.Equal(t, []string{"Missing phone number"}, invalid[0].Reasons)
	assert.Equal(t, []string{"Invalid phone format"}, invalid[1].Reasons)
	assert.Equal(t, []string{"Invalid phone format"}, invalid[2].Reasons)
}

func TestValidateUnsupportedChannel(t *testing.T) {
	_, invalid := Validate([]RawRecipient{{Email: "a@b.co"}}, model.Channel("fax"))
	require.Len(t, invalid, 1)
	assert.Equal(t, []string{"Unsupported channel"}, invalid[0].Reasons)
}

func TestValidateKeepsCustomFields(t *testing.T) {
	raw := []RawRecipient{{
		Email:        "alice@example.com",
		Name:         "  Alice Wanjiku  ",
		CustomFields: map[string]string{"plan": "pro"},
	}}

	valid, _ := Validate(raw, model.ChannelEmail)
	require.Len(t, valid, 1)
	assert.Equal(t, "Alice Wanjiku", valid[0].Name)
	assert.Equal(t, "pro", valid[0].CustomFields["plan"])
}

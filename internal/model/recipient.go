// internal/model/recipient.go
package model

import "time"

// RecipientStatus enumerates the delivery lifecycle of a single recipient.
//
//	pending -> {sent, failed}
//	sent -> {delivered, failed}
//	delivered -> {opened, bounced}
//	opened -> clicked
//	any -> unsubscribed (explicit opt-out)
type RecipientStatus string

const (
	RecipientPending      RecipientStatus = "pending"
	RecipientSent         RecipientStatus = "sent"
	RecipientDelivered    RecipientStatus = "delivered"
	RecipientOpened       RecipientStatus = "opened"
	RecipientClicked      RecipientStatus = "clicked"
	RecipientBounced      RecipientStatus = "bounced"
	RecipientFailed       RecipientStatus = "failed"
	RecipientUnsubscribed RecipientStatus = "unsubscribed"
)

// Terminal reports whether the status accepts no further delivery events.
// Unsubscribe is the one signal that still applies to a clicked recipient.
func (s RecipientStatus) Terminal() bool {
	return s == RecipientClicked || s == RecipientBounced ||
		s == RecipientFailed || s == RecipientUnsubscribed
}

// engagementRank orders the forward engagement chain so webhook events can
// never move a recipient backwards.
var engagementRank = map[RecipientStatus]int{
	RecipientPending:   0,
	RecipientSent:      1,
	RecipientDelivered: 2,
	RecipientOpened:    3,
	RecipientClicked:   4,
}

// absorbing statuses reject every event except unsubscribe.
func (s RecipientStatus) absorbing() bool {
	return s == RecipientBounced || s == RecipientFailed || s == RecipientUnsubscribed
}

// Recipient is one addressable target within a job. Created atomically with
// the job; only status, message id, error and engagement timestamps mutate.
type Recipient struct {
	ID       int64  `db:"id" json:"id"`
	JobID    string `db:"job_id" json:"job_id"`
	Position int    `db:"position" json:"position"`

	Email        string            `db:"email" json:"email,omitempty"`
	Phone        string            `db:"phone" json:"phone,omitempty"`
	Name         string            `db:"name" json:"name,omitempty"`
	CustomFields map[string]string `db:"custom_fields" json:"custom_fields,omitempty"`

	Status       RecipientStatus `db:"status" json:"status"`
	MessageID    *string         `db:"message_id" json:"message_id,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`

	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	OpenedAt    *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt   *time.Time `db:"clicked_at" json:"clicked_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Identity returns the channel-appropriate address of the recipient.
func (r *Recipient) Identity() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Phone
}

// internal/model/job.go
package model

import "time"

// Channel determines the provider, content shape and character limits of a job.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Valid reports whether the channel is one of the supported values.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelWhatsApp
}

// JobStatus enumerates the lifecycle states of a send job.
type JobStatus string

const (
	JobDraft     JobStatus = "draft"
	JobQueued    JobStatus = "queued"
	JobSending   JobStatus = "sending"
	JobPaused    JobStatus = "paused"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
	JobCompleted JobStatus = "completed"
)

// Terminal reports whether the job is in a final state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled || s == JobFailed
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobDraft:   {JobQueued, JobSending, JobCancelled},
	JobQueued:  {JobSending, JobCancelled},
	JobSending: {JobPaused, JobCancelled, JobFailed, JobCompleted},
	JobPaused:  {JobSending, JobCancelled},
}

// CanTransition reports whether the job status machine allows moving to the
// given state. Terminal states allow nothing.
func (s JobStatus) CanTransition(to JobStatus) bool {
	for _, next := range jobTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// StartableStatuses are the states an explicit start request may move to
// sending from.
var StartableStatuses = []JobStatus{JobDraft, JobQueued, JobPaused}

// CancelableStatuses are the non-terminal states a cancel request applies to.
var CancelableStatuses = []JobStatus{JobDraft, JobQueued, JobSending, JobPaused}

// ScheduleType controls when a job becomes eligible for dispatch.
type ScheduleType string

const (
	ScheduleImmediate ScheduleType = "immediate"
	ScheduleScheduled ScheduleType = "scheduled"
)

// Content is a resolved message payload. Subject and Preheader are only
// meaningful for the email channel.
type Content struct {
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
	Preheader string `json:"preheader,omitempty"`
}

// SendJob is the aggregate root of one send operation. Channel, content
// source and the recipient list are immutable after creation; only status,
// timestamps and derived counters change.
type SendJob struct {
	ID      string    `db:"id" json:"id"`
	Name    string    `db:"name" json:"name"`
	Channel Channel   `db:"channel" json:"channel"`
	Status  JobStatus `db:"status" json:"status"`

	// Content source: exactly one of the three is set at creation.
	TemplateID         *string  `db:"template_id" json:"template_id,omitempty"`
	GeneratedMessageID *string  `db:"generated_message_id" json:"generated_message_id,omitempty"`
	InlineContent      *Content `db:"-" json:"inline_content,omitempty"`

	ScheduleType ScheduleType `db:"schedule_type" json:"schedule_type"`
	ScheduledAt  *time.Time   `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Timezone     string       `db:"timezone" json:"timezone,omitempty"`

	Progress Progress `db:"-" json:"progress"`

	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// HasContentSource reports whether at least one content source is set.
func (j *SendJob) HasContentSource() bool {
	return j.TemplateID != nil || j.GeneratedMessageID != nil || j.InlineContent != nil
}

// Progress holds the derived per-status counters for a job. Counts are
// cumulative over the engagement chain: a clicked recipient counts as sent,
// delivered and opened as well, so Delivered <= Sent, Opened <= Delivered
// and Clicked <= Opened always hold.
type Progress struct {
	Total        int `db:"total" json:"total"`
	Sent         int `db:"sent_count" json:"sent"`
	Delivered    int `db:"delivered_count" json:"delivered"`
	Opened       int `db:"opened_count" json:"opened"`
	Clicked      int `db:"clicked_count" json:"clicked"`
	Bounced      int `db:"bounced_count" json:"bounced"`
	Failed       int `db:"failed_count" json:"failed"`
	Unsubscribed int `db:"unsubscribed_count" json:"unsubscribed"`
}

// CountProgress recomputes progress counters from a recipient status
// snapshot. Always derived in full, never incremented, so the counters can
// not drift from the authoritative recipient records.
func CountProgress(statuses []RecipientStatus) Progress {
	counts := make(map[RecipientStatus]int, len(statuses))
	for _, s := range statuses {
		counts[s]++
	}
	return ProgressFromCounts(counts)
}

// ProgressFromCounts builds progress from a per-status tally, expanding each
// status into the cumulative sets it implies.
func ProgressFromCounts(counts map[RecipientStatus]int) Progress {
	var p Progress
	for s, n := range counts {
		p.Total += n
		switch s {
		case RecipientSent:
			p.Sent += n
		case RecipientDelivered:
			p.Sent += n
			p.Delivered += n
		case RecipientOpened:
			p.Sent += n
			p.Delivered += n
			p.Opened += n
		case RecipientClicked:
			p.Sent += n
			p.Delivered += n
			p.Opened += n
			p.Clicked += n
		case RecipientBounced:
			p.Sent += n
			p.Bounced += n
		case RecipientFailed:
			p.Failed += n
		case RecipientUnsubscribed:
			p.Unsubscribed += n
		}
	}
	return p
}

// Analytics holds the derived engagement rates for a job, each in [0,100].
type Analytics struct {
	DeliveryRate    float64 `json:"delivery_rate"`
	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
	BounceRate      float64 `json:"bounce_rate"`
	UnsubscribeRate float64 `json:"unsubscribe_rate"`
}

// JobLogCap bounds the job log to the most recent entries; older entries are
// evicted first.
const JobLogCap = 100

// LogEntry is one line of a job's bounded activity log. The log is the sole
// user-visible error channel for asynchronous dispatch.
type LogEntry struct {
	Timestamp time.Time `db:"created_at" json:"timestamp"`
	Level     string    `db:"level" json:"level"`
	Message   string    `db:"message" json:"message"`
}

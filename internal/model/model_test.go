package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusTransitions(t *testing.T) {
	assert.True(t, JobDraft.CanTransition(JobSending))
	assert.True(t, JobQueued.CanTransition(JobSending))
	assert.True(t, JobSending.CanTransition(JobPaused))
	assert.True(t, JobPaused.CanTransition(JobSending))
	assert.True(t, JobSending.CanTransition(JobCompleted))
	assert.True(t, JobSending.CanTransition(JobFailed))

	// terminal states allow nothing
	for _, s := range []JobStatus{JobCompleted, JobCancelled, JobFailed} {
		assert.True(t, s.Terminal())
		assert.False(t, s.CanTransition(JobSending), "from %s", s)
		assert.False(t, s.CanTransition(JobCancelled), "from %s", s)
	}

	assert.False(t, JobDraft.CanTransition(JobCompleted))
	assert.False(t, JobQueued.CanTransition(JobPaused))
	assert.False(t, JobPaused.CanTransition(JobCompleted))
}

func TestCountProgressCumulative(t *testing.T) {
	p := CountProgress([]RecipientStatus{
		RecipientPending,
		RecipientSent,
		RecipientDelivered,
		RecipientOpened,
		RecipientClicked,
		RecipientBounced,
		RecipientFailed,
		RecipientUnsubscribed,
	})

	assert.Equal(t, 8, p.Total)
	// sent = sent + delivered + opened + clicked + bounced
	assert.Equal(t, 5, p.Sent)
	assert.Equal(t, 3, p.Delivered)
	assert.Equal(t, 2, p.Opened)
	assert.Equal(t, 1, p.Clicked)
	assert.Equal(t, 1, p.Bounced)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 1, p.Unsubscribed)

	// the chain invariants hold by construction
	assert.LessOrEqual(t, p.Delivered, p.Sent)
	assert.LessOrEqual(t, p.Opened, p.Delivered)
	assert.LessOrEqual(t, p.Clicked, p.Opened)
}

func TestCountProgressEmpty(t *testing.T) {
	p := CountProgress(nil)
	assert.Equal(t, Progress{}, p)
}

func TestApplyEventForwardChain(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &Recipient{Status: RecipientSent}

	changed := ApplyEvent(rec, DeliveryEvent{Type: EventDelivered}, now)
	require.True(t, changed)
	assert.Equal(t, RecipientDelivered, rec.Status)
	require.NotNil(t, rec.DeliveredAt)
	assert.Equal(t, now, *rec.DeliveredAt)

	changed = ApplyEvent(rec, DeliveryEvent{Type: EventOpened}, now.Add(time.Minute))
	require.True(t, changed)
	assert.Equal(t, RecipientOpened, rec.Status)

	changed = ApplyEvent(rec, DeliveryEvent{Type: EventClicked}, now.Add(2*time.Minute))
	require.True(t, changed)
	assert.Equal(t, RecipientClicked, rec.Status)
}

func TestApplyEventDuplicateIsNoop(t *testing.T) {
	now := time.Now()
	rec := &Recipient{Status: RecipientSent}

	require.True(t, ApplyEvent(rec, DeliveryEvent{Type: EventDelivered}, now))
	first := *rec.DeliveredAt

	changed := ApplyEvent(rec, DeliveryEvent{Type: EventDelivered}, now.Add(time.Hour))
	assert.False(t, changed)
	assert.Equal(t, first, *rec.DeliveredAt, "timestamp must not be overwritten")
	assert.Equal(t, RecipientDelivered, rec.Status)
}

func TestApplyEventChainSkip(t *testing.T) {
	// A click on a recipient still marked sent jumps straight to clicked.
	// Only clicked_at is set; delivered_at and opened_at stay nil.
	now := time.Now()
	rec := &Recipient{Status: RecipientSent}

	changed := ApplyEvent(rec, DeliveryEvent{Type: EventClicked}, now)
	require.True(t, changed)
	assert.Equal(t, RecipientClicked, rec.Status)
	assert.NotNil(t, rec.ClickedAt)
	assert.Nil(t, rec.DeliveredAt)
	assert.Nil(t, rec.OpenedAt)
}

func TestApplyEventNeverMovesBackwards(t *testing.T) {
	now := time.Now()
	rec := &Recipient{Status: RecipientClicked}

	// a late delivered event still records the timestamp but keeps the status
	changed := ApplyEvent(rec, DeliveryEvent{Type: EventDelivered}, now)
	assert.True(t, changed)
	assert.Equal(t, RecipientClicked, rec.Status)
	assert.NotNil(t, rec.DeliveredAt)

	// and once the timestamp is set too, the same event is a pure no-op
	assert.False(t, ApplyEvent(rec, DeliveryEvent{Type: EventDelivered}, now))
}

func TestApplyEventBounceAbsorbs(t *testing.T) {
	now := time.Now()
	rec := &Recipient{Status: RecipientDelivered}

	changed := ApplyEvent(rec, DeliveryEvent{Type: EventBounced, Reason: "mailbox full"}, now)
	require.True(t, changed)
	assert.Equal(t, RecipientBounced, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Equal(t, "mailbox full", *rec.ErrorMessage)

	// engagement events no longer apply
	assert.False(t, ApplyEvent(rec, DeliveryEvent{Type: EventOpened}, now))
	assert.False(t, ApplyEvent(rec, DeliveryEvent{Type: EventClicked}, now))
	assert.False(t, ApplyEvent(rec, DeliveryEvent{Type: EventFailed}, now))
	assert.Equal(t, RecipientBounced, rec.Status)
}

func TestApplyEventUnsubscribeWinsFromAnyState(t *testing.T) {
	now := time.Now()
	for _, from := range []RecipientStatus{
		RecipientPending, RecipientSent, RecipientDelivered,
		RecipientOpened, RecipientClicked, RecipientBounced, RecipientFailed,
	} {
		rec := &Recipient{Status: from}
		changed := ApplyEvent(rec, DeliveryEvent{Type: EventUnsubscribed}, now)
		assert.True(t, changed, "from %s", from)
		assert.Equal(t, RecipientUnsubscribed, rec.Status)
	}

	rec := &Recipient{Status: RecipientUnsubscribed}
	assert.False(t, ApplyEvent(rec, DeliveryEvent{Type: EventUnsubscribed}, now))
}

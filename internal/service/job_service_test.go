package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/msgblast-backend/internal/content"
	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/model"
	"github.com/unclebandit/msgblast-backend/internal/repository"
	"github.com/unclebandit/msgblast-backend/internal/validator"
)

type fakeQueue struct {
	mu        sync.Mutex
	published [][]byte
}

func (q *fakeQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, payload)
	return nil
}

func (q *fakeQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published)
}

func newTestService() (*JobService, *repository.MemoryStore, *fakeQueue) {
	store := repository.NewMemoryStore()
	q := &fakeQueue{}
	svc := &JobService{
		Jobs:       store,
		Recipients: store,
		Queue:      q,
		Resolver: &content.Resolver{
			Store:              store,
			CompanyName:        "MsgBlast",
			UnsubscribeBaseURL: "https://msgblast.io",
		},
		Logger: zap.NewNop(),
	}
	return svc, store, q
}

func inlineInput(n int) CreateJobInput {
	raw := make([]validator.RawRecipient, n)
	for i := range raw {
		raw[i] = validator.RawRecipient{Email: fmt.Sprintf("user%d@example.com", i)}
	}
	return CreateJobInput{
		Name:          "spring sale",
		Channel:       "email",
		InlineContent: &model.Content{Subject: "Sale", Body: "Hello {name}"},
		Recipients:    raw,
	}
}

func requireValidationErr(t *testing.T, err error) {
	t.Helper()
	var vErr *appErrors.ErrValidation
	require.True(t, errors.As(err, &vErr), "want validation error, got %v", err)
}

func TestCreateJob(t *testing.T) {
	svc, _, _ := newTestService()

	result, err := svc.Create(context.Background(), inlineInput(3))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Job.ID)
	assert.Equal(t, model.JobDraft, result.Job.Status)
	assert.Equal(t, model.ScheduleImmediate, result.Job.ScheduleType)
	assert.Empty(t, result.Invalid)
}

func TestCreateJobReportsInvalidRecipients(t *testing.T) {
	svc, store, _ := newTestService()

	in := inlineInput(2)
	in.Recipients = append(in.Recipients, validator.RawRecipient{Email: "broken"})

	result, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, result.Invalid, 1)
	assert.Equal(t, "broken", result.Invalid[0].Recipient.Email)

	// only the valid recipients were persisted
	recs, total, err := store.ListPage(context.Background(), result.Job.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, recs, 2)
}

func TestCreateJobRejections(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	in := inlineInput(1)
	in.Channel = "fax"
	_, err := svc.Create(ctx, in)
	requireValidationErr(t, err)

	in = inlineInput(1)
	in.InlineContent = nil
	_, err = svc.Create(ctx, in)
	requireValidationErr(t, err)

	in = inlineInput(0)
	_, err = svc.Create(ctx, in)
	requireValidationErr(t, err)

	in = inlineInput(validator.MaxRecipients + 1)
	_, err = svc.Create(ctx, in)
	requireValidationErr(t, err)
}

func TestCreateScheduledJob(t *testing.T) {
	svc, _, _ := newTestService()

	in := inlineInput(1)
	in.ScheduleType = "scheduled"
	at := "2026-09-01T08:00:00Z"
	in.ScheduledAt = &at

	result, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, result.Job.Status)
	assert.Equal(t, model.ScheduleScheduled, result.Job.ScheduleType)
	require.NotNil(t, result.Job.ScheduledAt)
	assert.Equal(t, time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC), result.Job.ScheduledAt.UTC())

	in.ScheduledAt = nil
	_, err = svc.Create(context.Background(), in)
	requireValidationErr(t, err)
}

func TestStartJob(t *testing.T) {
	svc, store, q := newTestService()
	ctx := context.Background()

	result, err := svc.Create(ctx, inlineInput(2))
	require.NoError(t, err)

	require.NoError(t, svc.Start(ctx, result.Job.ID))

	job, err := store.GetByID(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobSending, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.Equal(t, 1, q.count())

	// a second start while sending is rejected and publishes nothing
	err = svc.Start(ctx, result.Job.ID)
	requireValidationErr(t, err)
	assert.Equal(t, 1, q.count())
}

func TestStartUnknownJob(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.Start(context.Background(), "missing")
	var nfErr *appErrors.ErrJobNotFound
	require.True(t, errors.As(err, &nfErr))
}

func TestPauseOnlyFromSending(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	result, err := svc.Create(ctx, inlineInput(2))
	require.NoError(t, err)

	err = svc.Pause(ctx, result.Job.ID)
	requireValidationErr(t, err)

	require.NoError(t, svc.Start(ctx, result.Job.ID))
	require.NoError(t, svc.Pause(ctx, result.Job.ID))

	job, err := store.GetByID(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobPaused, job.Status)

	// paused jobs can be started again
	require.NoError(t, svc.Start(ctx, result.Job.ID))
}

func TestCancelJob(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	result, err := svc.Create(ctx, inlineInput(1))
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, result.Job.ID))

	job, err := store.GetByID(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, job.Status)

	// terminal: neither cancel nor start applies anymore
	requireValidationErr(t, svc.Cancel(ctx, result.Job.ID))
	requireValidationErr(t, svc.Start(ctx, result.Job.ID))
}

func TestStatusIncludesAnalytics(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	result, err := svc.Create(ctx, inlineInput(4))
	require.NoError(t, err)

	recs, _, err := store.ListPage(ctx, result.Job.ID, 0, 10)
	require.NoError(t, err)
	require.NoError(t, store.MarkSent(ctx, recs[0].ID, "m-1"))
	_, err = store.ApplyEvent(ctx, recs[0].ID, model.DeliveryEvent{Type: model.EventDelivered})
	require.NoError(t, err)
	_, err = store.RecomputeProgress(ctx, result.Job.ID)
	require.NoError(t, err)

	view, err := svc.Status(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, view.Job.Progress.Total)
	assert.Equal(t, 1, view.Job.Progress.Delivered)
	assert.InDelta(t, 25.0, view.Analytics.DeliveryRate, 0.001)
}

func TestPreview(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	result, err := svc.Create(ctx, inlineInput(1))
	require.NoError(t, err)

	rendered, err := svc.Preview(ctx, result.Job.ID, validator.RawRecipient{
		Email: "sample@example.com",
		Name:  "Sample Person",
	})
	require.NoError(t, err)
	assert.Contains(t, rendered.Body, "Hello Sample Person")
	assert.Contains(t, rendered.Body, "Unsubscribe: ")

	_, err = svc.Preview(ctx, result.Job.ID, validator.RawRecipient{Email: "nope"})
	requireValidationErr(t, err)
}

func TestEnqueueDue(t *testing.T) {
	svc, store, q := newTestService()
	ctx := context.Background()

	in := inlineInput(1)
	in.ScheduleType = "scheduled"
	at := "2026-08-01T00:00:00Z"
	in.ScheduledAt = &at
	result, err := svc.Create(ctx, in)
	require.NoError(t, err)

	// before the scheduled time nothing starts
	started, err := svc.EnqueueDue(ctx, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, started)

	started, err = svc.EnqueueDue(ctx, time.Date(2026, 8, 1, 0, 0, 1, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, q.count())

	job, err := store.GetByID(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobSending, job.Status)
}

func TestRecoverInFlight(t *testing.T) {
	svc, store, q := newTestService()
	ctx := context.Background()

	result, err := svc.Create(ctx, inlineInput(1))
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, result.Job.ID))
	require.Equal(t, 1, q.count())

	// simulates a worker restart with the job stuck in sending
	n, err := svc.RecoverInFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, q.count())

	logs, err := store.Logs(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Contains(t, logs[len(logs)-1].Message, "resumed after restart")
}

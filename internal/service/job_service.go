// internal/service/job_service.go
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/msgblast-backend/internal/analytics"
	"github.com/unclebandit/msgblast-backend/internal/content"
	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/model"
	"github.com/unclebandit/msgblast-backend/internal/queue"
	"github.com/unclebandit/msgblast-backend/internal/repository"
	"github.com/unclebandit/msgblast-backend/internal/validator"
)

// JobService owns job creation and lifecycle control. Dispatch itself runs
// asynchronously behind the queue; the service only flips states and
// publishes dispatch requests.
type JobService struct {
	Jobs       repository.JobRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Queue      queue.Queue
	Resolver   *content.Resolver
	Logger     *zap.Logger
}

type CreateJobInput struct {
	Name               string                   `json:"name"`
	Channel            string                   `json:"channel"`
	TemplateID         *string                  `json:"template_id,omitempty"`
	GeneratedMessageID *string                  `json:"generated_message_id,omitempty"`
	InlineContent      *model.Content           `json:"inline_content,omitempty"`
	Recipients         []validator.RawRecipient `json:"recipients"`
	ScheduleType       string                   `json:"schedule_type,omitempty"`
	ScheduledAt        *string                  `json:"scheduled_at,omitempty"`
	Timezone           string                   `json:"timezone,omitempty"`
}

type CreateJobResult struct {
	Job     *model.SendJob      `json:"job"`
	Invalid []validator.Invalid `json:"invalid_recipients,omitempty"`
}

func (s *JobService) Create(ctx context.Context, in CreateJobInput) (*CreateJobResult, error) {
	channel := model.Channel(in.Channel)
	if !channel.Valid() {
		return nil, appErrors.NewValidation("unsupported channel: %s", in.Channel)
	}

	job := &model.SendJob{
		ID:                 uuid.New().String(),
		Name:               in.Name,
		Channel:            channel,
		Status:             model.JobDraft,
		TemplateID:         in.TemplateID,
		GeneratedMessageID: in.GeneratedMessageID,
		InlineContent:      in.InlineContent,
		ScheduleType:       model.ScheduleImmediate,
		Timezone:           in.Timezone,
	}
	if !job.HasContentSource() {
		return nil, appErrors.NewValidation("job needs a template, a generated message or inline content")
	}

	if in.ScheduleType == string(model.ScheduleScheduled) {
		if in.ScheduledAt == nil {
			return nil, appErrors.NewValidation("scheduled job needs scheduled_at")
		}
		t, err := time.Parse(time.RFC3339, *in.ScheduledAt)
		if err != nil {
			return nil, appErrors.NewValidation("invalid scheduled_at: %v", err)
		}
		job.ScheduleType = model.ScheduleScheduled
		job.ScheduledAt = &t
		job.Status = model.JobQueued
	}

	valid, invalid := validator.Validate(in.Recipients, channel)
	if len(valid) == 0 {
		return nil, appErrors.NewValidation("no valid recipients")
	}
	if len(valid) > validator.MaxRecipients {
		return nil, appErrors.NewValidation("recipient list exceeds %d", validator.MaxRecipients)
	}

	if err := s.Jobs.Create(ctx, job, valid); err != nil {
		return nil, err
	}

	s.Logger.Info("job created",
		zap.String("job_id", job.ID),
		zap.String("channel", in.Channel),
		zap.Int("recipients", len(valid)),
		zap.Int("rejected", len(invalid)))

	return &CreateJobResult{Job: job, Invalid: invalid}, nil
}

// Start moves the job into sending and publishes a dispatch request. Allowed
// from draft, queued and paused; started_at is only set on the first start.
func (s *JobService) Start(ctx context.Context, id string) error {
	ok, err := s.Jobs.TransitionStatus(ctx, id, model.StartableStatuses, model.JobSending)
	if err != nil {
		return err
	}
	if !ok {
		job, err := s.Jobs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return appErrors.NewValidation("cannot start job in status %s", job.Status)
	}

	if err := s.Jobs.MarkStarted(ctx, id); err != nil {
		return err
	}
	s.Jobs.AppendLog(ctx, id, "info", "dispatch requested")

	if err := s.Queue.Publish(queue.TopicJobDispatch, queue.DispatchMessage{JobID: id}.Encode()); err != nil {
		s.Logger.Error("failed to publish dispatch request",
			zap.String("job_id", id), zap.Error(err))
		return err
	}
	return nil
}

// Pause requests a pause; the dispatcher honors it at the next batch
// boundary.
func (s *JobService) Pause(ctx context.Context, id string) error {
	ok, err := s.Jobs.TransitionStatus(ctx, id,
		[]model.JobStatus{model.JobSending}, model.JobPaused)
	if err != nil {
		return err
	}
	if !ok {
		job, err := s.Jobs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return appErrors.NewValidation("cannot pause job in status %s", job.Status)
	}
	s.Jobs.AppendLog(ctx, id, "info", "pause requested")
	return nil
}

// Cancel is allowed from any non-terminal state.
func (s *JobService) Cancel(ctx context.Context, id string) error {
	ok, err := s.Jobs.TransitionStatus(ctx, id, model.CancelableStatuses, model.JobCancelled)
	if err != nil {
		return err
	}
	if !ok {
		job, err := s.Jobs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return appErrors.NewValidation("cannot cancel job in status %s", job.Status)
	}
	s.Jobs.AppendLog(ctx, id, "info", "job cancelled")
	return nil
}

// JobStatusView is the status/progress/analytics readout for one job.
type JobStatusView struct {
	Job       *model.SendJob  `json:"job"`
	Analytics model.Analytics `json:"analytics"`
}

func (s *JobService) Status(ctx context.Context, id string) (*JobStatusView, error) {
	job, err := s.Jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &JobStatusView{
		Job:       job,
		Analytics: analytics.Compute(job.Progress),
	}, nil
}

func (s *JobService) List(ctx context.Context, page, pageSize int, channel, status string) ([]*model.SendJob, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	jobs, total, err := s.Jobs.List(ctx, offset, pageSize, channel, status)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return jobs, pagination, nil
}

func (s *JobService) Logs(ctx context.Context, id string) ([]model.LogEntry, error) {
	if _, err := s.Jobs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.Jobs.Logs(ctx, id)
}

func (s *JobService) ListRecipients(ctx context.Context, id string, page, pageSize int) ([]*model.Recipient, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}
	if _, err := s.Jobs.GetByID(ctx, id); err != nil {
		return nil, nil, err
	}

	offset := (page - 1) * pageSize
	recipients, total, err := s.Recipients.ListPage(ctx, id, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return recipients, pagination, nil
}

// Preview resolves and personalizes the job's content against a sample
// recipient without touching job state.
func (s *JobService) Preview(ctx context.Context, id string, raw validator.RawRecipient) (*model.Content, error) {
	job, err := s.Jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	valid, invalid := validator.Validate([]validator.RawRecipient{raw}, job.Channel)
	if len(valid) == 0 {
		return nil, appErrors.NewValidation("invalid preview recipient: %v", invalid[0].Reasons)
	}

	resolved, err := s.Resolver.Resolve(ctx, job)
	if err != nil {
		return nil, err
	}

	rec := valid[0]
	rec.JobID = job.ID
	rendered := s.Resolver.Render(resolved, &rec, job.Channel)
	return &rendered, nil
}

// EnqueueDue starts queued scheduled jobs whose time has come. Called
// periodically by the worker's scheduler tick.
func (s *JobService) EnqueueDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.Jobs.DueScheduled(ctx, now)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, id := range ids {
		if err := s.Start(ctx, id); err != nil {
			s.Logger.Error("failed to start scheduled job",
				zap.String("job_id", id), zap.Error(err))
			continue
		}
		started++
	}
	return started, nil
}

// RecoverInFlight republishes dispatch requests for jobs left in sending
// state, picking up where a crashed worker stopped. Only still-pending
// recipients are dispatched, so this is safe to run on every boot.
func (s *JobService) RecoverInFlight(ctx context.Context) (int, error) {
	ids, err := s.Jobs.InFlight(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.Jobs.AppendLog(ctx, id, "info", "dispatch resumed after restart")
		if err := s.Queue.Publish(queue.TopicJobDispatch, queue.DispatchMessage{JobID: id}.Encode()); err != nil {
			s.Logger.Error("failed to republish in-flight job",
				zap.String("job_id", id), zap.Error(err))
		}
	}
	return len(ids), nil
}

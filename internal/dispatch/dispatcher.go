// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/msgblast-backend/internal/content"
	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/metrics"
	"github.com/unclebandit/msgblast-backend/internal/model"
	"github.com/unclebandit/msgblast-backend/internal/provider"
	"github.com/unclebandit/msgblast-backend/internal/repository"
)

const (
	DefaultBatchSize  = 100
	DefaultBatchPause = time.Second
)

// Dispatcher drains a job's pending recipients in fixed-size batches,
// invoking the provider sender with bounded concurrency and inter-batch
// pacing. Run is idempotent and re-entrant: it no-ops unless the job is in
// the sending state, which is also how pause and cancel take effect
// asynchronously.
type Dispatcher struct {
	Jobs       repository.JobRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Resolver   *content.Resolver
	Senders    *provider.Registry

	BatchSize   int
	BatchPause  time.Duration // zero skips pacing, for tests
	SendTimeout time.Duration

	Logger *zap.Logger
}

func (d *Dispatcher) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return DefaultBatchSize
}

func (d *Dispatcher) sendTimeout() time.Duration {
	if d.SendTimeout > 0 {
		return d.SendTimeout
	}
	return 10 * time.Second
}

// Run drives one dispatch pass over the job. Per-recipient provider errors
// are recorded on the recipient and never surfaced; job-level failures move
// the job to failed with a log entry. The returned error is only for the
// queue layer's retry accounting.
func (d *Dispatcher) Run(ctx context.Context, jobID string) error {
	job, err := d.Jobs.GetByID(ctx, jobID)
	if err != nil {
		d.Logger.Error("dispatch: job load failed", zap.String("job_id", jobID), zap.Error(err))
		return err
	}

	// Not in sending state: nothing to do. This is the pause/cancel path.
	if job.Status != model.JobSending {
		d.Logger.Debug("dispatch: job not in sending state, skipping",
			zap.String("job_id", jobID),
			zap.String("status", string(job.Status)))
		return nil
	}

	if err := d.drain(ctx, job); err != nil {
		d.fail(ctx, jobID, err)
	}
	return nil
}

func (d *Dispatcher) drain(ctx context.Context, job *model.SendJob) error {
	resolved, err := d.Resolver.Resolve(ctx, job)
	if err != nil {
		return err
	}

	sender, err := d.Senders.For(job.Channel)
	if err != nil {
		return err
	}

	for {
		// Status re-check at the top of every batch: the only cancellation
		// and pause checkpoint. Mid-batch requests wait for the boundary.
		current, err := d.Jobs.GetByID(ctx, job.ID)
		if err != nil {
			return err
		}
		if current.Status != model.JobSending {
			d.Logger.Info("dispatch: job left sending state, stopping",
				zap.String("job_id", job.ID),
				zap.String("status", string(current.Status)))
			return nil
		}

		batch, err := d.Recipients.Pending(ctx, job.ID, d.batchSize())
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		// If not a single outcome could be persisted, the next Pending fetch
		// would return the same batch and re-send to the provider forever.
		if recorded := d.processBatch(ctx, job, sender, resolved, batch); recorded == 0 {
			return fmt.Errorf("failed to record send outcome for any of %d recipients", len(batch))
		}

		if _, err := d.Jobs.RecomputeProgress(ctx, job.ID); err != nil {
			return err
		}

		// Pacing between batches: deliberate backpressure toward provider
		// rate limits, not an incidental sleep.
		if d.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d.BatchPause):
			}
		}
	}

	progress, err := d.Jobs.RecomputeProgress(ctx, job.ID)
	if err != nil {
		return err
	}

	// Complete only if the job is still sending; a pause or cancel that
	// landed underneath stands.
	done, err := d.Jobs.TransitionStatus(ctx, job.ID,
		[]model.JobStatus{model.JobSending}, model.JobCompleted)
	if err != nil {
		return err
	}
	if done {
		if err := d.Jobs.MarkCompleted(ctx, job.ID); err != nil {
			return err
		}
		d.Jobs.AppendLog(ctx, job.ID, "info", fmt.Sprintf(
			"dispatch completed: %d sent, %d failed of %d recipients",
			progress.Sent, progress.Failed, progress.Total))
		metrics.JobsCompleted.Inc()
		d.Logger.Info("dispatch: job completed",
			zap.String("job_id", job.ID),
			zap.Int("sent", progress.Sent),
			zap.Int("failed", progress.Failed))
	}
	return nil
}

// processBatch attempts delivery for every recipient in the batch
// concurrently and waits for all of them: one recipient's failure never
// aborts its siblings. Returns how many send outcomes were persisted.
func (d *Dispatcher) processBatch(ctx context.Context, job *model.SendJob, sender provider.Sender, resolved model.Content, batch []*model.Recipient) int {
	var wg sync.WaitGroup
	var recorded int64
	for _, rec := range batch {
		wg.Add(1)
		go func(rec *model.Recipient) {
			defer wg.Done()
			if d.sendOne(ctx, job, sender, resolved, rec) {
				atomic.AddInt64(&recorded, 1)
			}
		}(rec)
	}
	wg.Wait()
	return int(recorded)
}

// sendOne attempts one delivery and persists the outcome. Reports whether the
// status write succeeded; provider errors still count as recorded once the
// failure lands on the recipient row.
func (d *Dispatcher) sendOne(ctx context.Context, job *model.SendJob, sender provider.Sender, resolved model.Content, rec *model.Recipient) bool {
	rendered := d.Resolver.Render(resolved, rec, job.Channel)

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout())
	defer cancel()

	result, err := sender.Send(sendCtx, rec, rendered)
	if err != nil {
		metrics.MessagesFailed.WithLabelValues(string(job.Channel)).Inc()
		if markErr := d.Recipients.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			d.Logger.Error("dispatch: failed to record send failure",
				zap.Int64("recipient_id", rec.ID), zap.Error(markErr))
			return false
		}
		return true
	}

	metrics.MessagesSent.WithLabelValues(string(job.Channel)).Inc()
	if markErr := d.Recipients.MarkSent(ctx, rec.ID, result.MessageID); markErr != nil {
		d.Logger.Error("dispatch: failed to record sent status",
			zap.Int64("recipient_id", rec.ID), zap.Error(markErr))
		return false
	}
	return true
}

// fail moves the job to failed from whatever non-terminal state it is in and
// records the cause in the job log.
func (d *Dispatcher) fail(ctx context.Context, jobID string, cause error) {
	wrapped := appErrors.NewDispatch(jobID, cause)
	d.Logger.Error("dispatch: job failed", zap.String("job_id", jobID), zap.Error(wrapped))

	_, err := d.Jobs.TransitionStatus(ctx, jobID,
		[]model.JobStatus{model.JobSending, model.JobQueued, model.JobPaused},
		model.JobFailed)
	if err != nil {
		d.Logger.Error("dispatch: failed status transition error",
			zap.String("job_id", jobID), zap.Error(err))
	}
	if err := d.Jobs.AppendLog(ctx, jobID, "error", cause.Error()); err != nil {
		d.Logger.Error("dispatch: failed to append job log",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

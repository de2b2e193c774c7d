// internal/repository/repository.go
package repository

import (
	"context"
	"time"

	"github.com/unclebandit/msgblast-backend/internal/model"
)

// JobRepositoryInterface is the persistence contract for send jobs.
type JobRepositoryInterface interface {
	Create(ctx context.Context, job *model.SendJob, recipients []model.Recipient) error
	GetByID(ctx context.Context, id string) (*model.SendJob, error)
	List(ctx context.Context, offset, limit int, channel, status string) ([]*model.SendJob, int, error)

	// TransitionStatus atomically moves the job to the target status if its
	// current status is one of from. Returns whether the transition applied.
	TransitionStatus(ctx context.Context, id string, from []model.JobStatus, to model.JobStatus) (bool, error)

	// MarkStarted and MarkCompleted set their timestamp only on first call.
	MarkStarted(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error

	// RecomputeProgress rebuilds the progress counters from the recipient
	// rows and persists them on the job.
	RecomputeProgress(ctx context.Context, id string) (model.Progress, error)

	AppendLog(ctx context.Context, id, level, message string) error
	Logs(ctx context.Context, id string) ([]model.LogEntry, error)

	// DueScheduled returns ids of queued scheduled jobs whose time has come.
	DueScheduled(ctx context.Context, now time.Time) ([]string, error)
	// InFlight returns ids of jobs left in sending state, for crash recovery.
	InFlight(ctx context.Context) ([]string, error)
}

// RecipientRepositoryInterface is the persistence contract for the per-job
// recipient rows. Row-level updates are the unit of atomicity so concurrent
// dispatcher and reconciler writes cannot lose each other's updates.
type RecipientRepositoryInterface interface {
	ListPage(ctx context.Context, jobID string, offset, limit int) ([]*model.Recipient, int, error)

	// Pending returns up to limit recipients still pending, in list order.
	Pending(ctx context.Context, jobID string, limit int) ([]*model.Recipient, error)

	// MarkSent records the provider message id and advances pending->sent.
	// The status change is conditional so a webhook that already advanced the
	// recipient is never overwritten.
	MarkSent(ctx context.Context, id int64, messageID string) error
	MarkFailed(ctx context.Context, id int64, reason string) error

	ByMessageID(ctx context.Context, jobID, messageID string) (*model.Recipient, error)
	ByEmailAndMessageID(ctx context.Context, jobID, email, messageID string) (*model.Recipient, error)

	// ApplyEvent runs model.ApplyEvent under a per-recipient lock and
	// persists the outcome. Returns whether anything changed.
	ApplyEvent(ctx context.Context, id int64, ev model.DeliveryEvent) (bool, error)

	// AppendEvent records a raw provider payload on the recipient's webhook
	// audit trail.
	AppendEvent(ctx context.Context, id int64, eventType string, payload []byte) error
}

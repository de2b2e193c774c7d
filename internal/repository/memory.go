// internal/repository/memory.go
package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/model"
)

// StoredEvent is one entry of a recipient's webhook audit trail.
type StoredEvent struct {
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// MemoryStore is an in-memory implementation of the job and recipient
// repositories plus the content store. It backs tests and local development
// without Postgres; the mutex gives the same per-record atomicity the SQL
// implementation gets from row locks.
type MemoryStore struct {
	mu         sync.Mutex
	jobs       map[string]*model.SendJob
	recipients map[string][]*model.Recipient
	byID       map[int64]*model.Recipient
	logs       map[string][]model.LogEntry
	events     map[int64][]StoredEvent
	templates  map[string]*model.Content
	generated  map[string]*model.Content
	nextID     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[string]*model.SendJob),
		recipients: make(map[string][]*model.Recipient),
		byID:       make(map[int64]*model.Recipient),
		logs:       make(map[string][]model.LogEntry),
		events:     make(map[int64][]StoredEvent),
		templates:  make(map[string]*model.Content),
		generated:  make(map[string]*model.Content),
	}
}

// ---------------------------------------------------------------------------
// JobRepositoryInterface

func (m *MemoryStore) Create(ctx context.Context, job *model.SendJob, recipients []model.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.CreatedAt = time.Now()
	job.Progress = model.Progress{Total: len(recipients)}
	stored := *job
	m.jobs[job.ID] = &stored

	list := make([]*model.Recipient, len(recipients))
	for i := range recipients {
		m.nextID++
		rec := recipients[i]
		rec.ID = m.nextID
		rec.JobID = job.ID
		rec.Position = i
		rec.Status = model.RecipientPending
		rec.CreatedAt = time.Now()
		rec.UpdatedAt = rec.CreatedAt
		list[i] = &rec
		m.byID[rec.ID] = &rec
	}
	m.recipients[job.ID] = list
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*model.SendJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, appErrors.NewJobNotFound(id)
	}
	copied := *job
	return &copied, nil
}

func (m *MemoryStore) List(ctx context.Context, offset, limit int, channel, status string) ([]*model.SendJob, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := []*model.SendJob{}
	for _, job := range m.jobs {
		if channel != "" && string(job.Channel) != channel {
			continue
		}
		if status != "" && string(job.Status) != status {
			continue
		}
		copied := *job
		matched = append(matched, &copied)
	}

	// newest first, matching the SQL store's created_at DESC ordering; id
	// breaks ties so map iteration order never leaks into pagination
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if offset >= total {
		return []*model.SendJob{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *MemoryStore) TransitionStatus(ctx context.Context, id string, from []model.JobStatus, to model.JobStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if job.Status == s {
			job.Status = to
			now := time.Now()
			job.UpdatedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) MarkStarted(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok && job.StartedAt == nil {
		now := time.Now()
		job.StartedAt = &now
	}
	return nil
}

func (m *MemoryStore) MarkCompleted(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok && job.CompletedAt == nil {
		now := time.Now()
		job.CompletedAt = &now
	}
	return nil
}

func (m *MemoryStore) RecomputeProgress(ctx context.Context, id string) (model.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]model.RecipientStatus, 0, len(m.recipients[id]))
	for _, rec := range m.recipients[id] {
		statuses = append(statuses, rec.Status)
	}
	p := model.CountProgress(statuses)
	if job, ok := m.jobs[id]; ok {
		job.Progress = p
	}
	return p, nil
}

func (m *MemoryStore) AppendLog(ctx context.Context, id, level, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := append(m.logs[id], model.LogEntry{
		Timestamp: time.Now(), Level: level, Message: message,
	})
	if len(entries) > model.JobLogCap {
		entries = entries[len(entries)-model.JobLogCap:]
	}
	m.logs[id] = entries
	return nil
}

func (m *MemoryStore) Logs(ctx context.Context, id string) ([]model.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.LogEntry, len(m.logs[id]))
	copy(out, m.logs[id])
	return out, nil
}

func (m *MemoryStore) DueScheduled(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for _, job := range m.jobs {
		if job.Status == model.JobQueued && job.ScheduleType == model.ScheduleScheduled &&
			job.ScheduledAt != nil && !job.ScheduledAt.After(now) {
			ids = append(ids, job.ID)
		}
	}
	return ids, nil
}

func (m *MemoryStore) InFlight(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for _, job := range m.jobs {
		if job.Status == model.JobSending {
			ids = append(ids, job.ID)
		}
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// RecipientRepositoryInterface

func (m *MemoryStore) ListPage(ctx context.Context, jobID string, offset, limit int) ([]*model.Recipient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.recipients[jobID]
	total := len(all)
	if offset >= total {
		return []*model.Recipient{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]*model.Recipient, 0, end-offset)
	for _, rec := range all[offset:end] {
		copied := *rec
		out = append(out, &copied)
	}
	return out, total, nil
}

func (m *MemoryStore) Pending(ctx context.Context, jobID string, limit int) ([]*model.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*model.Recipient{}
	for _, rec := range m.recipients[jobID] {
		if rec.Status != model.RecipientPending {
			continue
		}
		copied := *rec
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkSent(ctx context.Context, id int64, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil
	}
	rec.MessageID = &messageID
	if rec.Status == model.RecipientPending {
		rec.Status = model.RecipientSent
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil
	}
	if rec.Status == model.RecipientPending {
		rec.Status = model.RecipientFailed
		rec.ErrorMessage = &reason
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ByMessageID(ctx context.Context, jobID, messageID string) (*model.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recipients[jobID] {
		if rec.MessageID != nil && *rec.MessageID == messageID {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ByEmailAndMessageID(ctx context.Context, jobID, email, messageID string) (*model.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recipients[jobID] {
		if rec.Email == email && rec.MessageID != nil && *rec.MessageID == messageID {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ApplyEvent(ctx context.Context, id int64, ev model.DeliveryEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	changed := model.ApplyEvent(rec, ev, time.Now())
	if changed {
		rec.UpdatedAt = time.Now()
	}
	return changed, nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, id int64, eventType string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = append(m.events[id], StoredEvent{
		EventType: eventType,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: time.Now(),
	})
	return nil
}

// Events exposes a recipient's audit trail (used by tests).
func (m *MemoryStore) Events(id int64) []StoredEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StoredEvent, len(m.events[id]))
	copy(out, m.events[id])
	return out
}

// ---------------------------------------------------------------------------
// content.Store

func (m *MemoryStore) Template(ctx context.Context, id string) (*model.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.templates[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (m *MemoryStore) GeneratedMessage(ctx context.Context, id string) (*model.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.generated[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (m *MemoryStore) AddTemplate(id string, c model.Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[id] = &c
}

func (m *MemoryStore) AddGeneratedMessage(id string, c model.Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generated[id] = &c
}

var (
	_ JobRepositoryInterface       = (*MemoryStore)(nil)
	_ RecipientRepositoryInterface = (*MemoryStore)(nil)
)

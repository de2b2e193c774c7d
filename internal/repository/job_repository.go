// internal/repository/job_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/model"
)

type JobRepository struct {
	DB *sql.DB
}

const jobColumns = `id, name, channel, status, template_id, generated_message_id,
	inline_subject, inline_body, inline_preheader,
	schedule_type, scheduled_at, timezone,
	total, sent_count, delivered_count, opened_count, clicked_count,
	bounced_count, failed_count, unsubscribed_count,
	started_at, completed_at, created_at, updated_at`

// Create persists the job together with its full recipient list in one
// transaction; the recipient list is immutable afterwards.
func (r *JobRepository) Create(ctx context.Context, job *model.SendJob, recipients []model.Recipient) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	job.CreatedAt = time.Now()
	job.Progress = model.Progress{Total: len(recipients)}

	var inlineSubject, inlineBody, inlinePreheader sql.NullString
	if job.InlineContent != nil {
		inlineSubject = sql.NullString{String: job.InlineContent.Subject, Valid: true}
		inlineBody = sql.NullString{String: job.InlineContent.Body, Valid: true}
		inlinePreheader = sql.NullString{String: job.InlineContent.Preheader, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO send_jobs
        (id, name, channel, status, template_id, generated_message_id,
         inline_subject, inline_body, inline_preheader,
         schedule_type, scheduled_at, timezone, total, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		job.ID, job.Name, job.Channel, job.Status,
		job.TemplateID, job.GeneratedMessageID,
		inlineSubject, inlineBody, inlinePreheader,
		job.ScheduleType, job.ScheduledAt, job.Timezone,
		len(recipients), job.CreatedAt,
	)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO job_recipients
        (job_id, position, email, phone, name, custom_fields, status)
        VALUES ($1,$2,$3,$4,$5,$6,'pending')`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range recipients {
		fields := recipients[i].CustomFields
		if fields == nil {
			fields = map[string]string{}
		}
		fieldsJSON, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, job.ID, i,
			recipients[i].Email, recipients[i].Phone, recipients[i].Name, fieldsJSON); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*model.SendJob, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM send_jobs WHERE id=$1`, id)
	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepository) List(ctx context.Context, offset, limit int, channel, status string) ([]*model.SendJob, int, error) {
	query := `SELECT ` + jobColumns + ` FROM send_jobs WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if channel != "" {
		query += fmt.Sprintf(" AND channel=$%d", argPos)
		args = append(args, channel)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs := []*model.SendJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM send_jobs WHERE 1=1`
	countArgs := []interface{}{}
	argPos = 1
	if channel != "" {
		countQuery += fmt.Sprintf(" AND channel=$%d", argPos)
		countArgs = append(countArgs, channel)
		argPos++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", argPos)
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

func (r *JobRepository) TransitionStatus(ctx context.Context, id string, from []model.JobStatus, to model.JobStatus) (bool, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	res, err := r.DB.ExecContext(ctx, `
        UPDATE send_jobs SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status = ANY($3)`,
		to, id, pq.Array(fromStr))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *JobRepository) MarkStarted(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE send_jobs SET started_at = COALESCE(started_at, NOW()), updated_at=NOW()
        WHERE id=$1`, id)
	return err
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE send_jobs SET completed_at = COALESCE(completed_at, NOW()), updated_at=NOW()
        WHERE id=$1`, id)
	return err
}

func (r *JobRepository) RecomputeProgress(ctx context.Context, id string) (model.Progress, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT status, COUNT(*) FROM job_recipients WHERE job_id=$1 GROUP BY status`, id)
	if err != nil {
		return model.Progress{}, err
	}
	defer rows.Close()

	counts := map[model.RecipientStatus]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return model.Progress{}, err
		}
		counts[model.RecipientStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return model.Progress{}, err
	}

	p := model.ProgressFromCounts(counts)

	_, err = r.DB.ExecContext(ctx, `
        UPDATE send_jobs SET
            total=$1, sent_count=$2, delivered_count=$3, opened_count=$4,
            clicked_count=$5, bounced_count=$6, failed_count=$7,
            unsubscribed_count=$8, updated_at=NOW()
        WHERE id=$9`,
		p.Total, p.Sent, p.Delivered, p.Opened,
		p.Clicked, p.Bounced, p.Failed, p.Unsubscribed, id)
	return p, err
}

// AppendLog inserts a log line and trims the job log to its cap, oldest
// entries first.
func (r *JobRepository) AppendLog(ctx context.Context, id, level, message string) error {
	if _, err := r.DB.ExecContext(ctx, `
        INSERT INTO job_logs (job_id, level, message) VALUES ($1,$2,$3)`,
		id, level, message); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, `
        DELETE FROM job_logs WHERE job_id=$1 AND id NOT IN (
            SELECT id FROM job_logs WHERE job_id=$1 ORDER BY id DESC LIMIT $2
        )`, id, model.JobLogCap)
	return err
}

func (r *JobRepository) Logs(ctx context.Context, id string) ([]model.LogEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT level, message, created_at FROM job_logs
        WHERE job_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []model.LogEntry{}
	for rows.Next() {
		var entry model.LogEntry
		if err := rows.Scan(&entry.Level, &entry.Message, &entry.Timestamp); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (r *JobRepository) DueScheduled(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id FROM send_jobs
        WHERE status='queued' AND schedule_type='scheduled' AND scheduled_at <= $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *JobRepository) InFlight(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM send_jobs WHERE status='sending'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.SendJob, error) {
	var j model.SendJob
	var inlineSubject, inlineBody, inlinePreheader sql.NullString
	err := row.Scan(
		&j.ID, &j.Name, &j.Channel, &j.Status,
		&j.TemplateID, &j.GeneratedMessageID,
		&inlineSubject, &inlineBody, &inlinePreheader,
		&j.ScheduleType, &j.ScheduledAt, &j.Timezone,
		&j.Progress.Total, &j.Progress.Sent, &j.Progress.Delivered,
		&j.Progress.Opened, &j.Progress.Clicked, &j.Progress.Bounced,
		&j.Progress.Failed, &j.Progress.Unsubscribed,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if inlineBody.Valid {
		j.InlineContent = &model.Content{
			Subject:   inlineSubject.String,
			Body:      inlineBody.String,
			Preheader: inlinePreheader.String,
		}
	}
	return &j, nil
}

var _ JobRepositoryInterface = (*JobRepository)(nil)
